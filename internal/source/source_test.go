package source

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendscope/internal/models"
)

type pagedSource struct {
	txns      []models.Transaction
	calls     int
	failPage  int
	pageError string
	total     int
}

func (s *pagedSource) FetchTransactions(ctx context.Context, session Session, q Query, page, pageSize int) (*Page, error) {
	s.calls++
	if page == s.failPage {
		return nil, errors.New("boom")
	}
	p := Paginate(s.txns, page, pageSize)
	p.Error = s.pageError
	if s.total > 0 {
		p.TotalCount = s.total
	}
	return p, nil
}

func makeTxns(n int) []models.Transaction {
	out := make([]models.Transaction, n)
	for i := range out {
		out[i] = models.Transaction{
			ID:     fmt.Sprintf("t%d", i),
			Amount: models.MustAmount("-1"),
			Date:   models.DateOf(time.Date(2024, 1, 1+i%28, 0, 0, 0, 0, time.UTC)),
		}
	}
	return out
}

var session = Session{UserID: "u1", Token: "tok"}

func TestFetchAllWalksPages(t *testing.T) {
	src := &pagedSource{txns: makeTxns(25)}

	txns, total, err := FetchAll(context.Background(), src, session, Query{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txns, 25)
	assert.Equal(t, 25, total)
	assert.Equal(t, 3, src.calls)
	assert.Equal(t, "t24", txns[24].ID)
}

func TestFetchAllExactMultipleStopsOnTotal(t *testing.T) {
	src := &pagedSource{txns: makeTxns(20)}

	txns, _, err := FetchAll(context.Background(), src, session, Query{}, 10, 0)
	require.NoError(t, err)
	assert.Len(t, txns, 20)
	assert.Equal(t, 2, src.calls)
}

func TestFetchAllPageCap(t *testing.T) {
	src := &pagedSource{txns: makeTxns(100)}

	txns, total, err := FetchAll(context.Background(), src, session, Query{}, 10, 3)
	require.NoError(t, err)
	assert.Len(t, txns, 30)
	assert.Equal(t, 100, total)
}

func TestFetchAllPageError(t *testing.T) {
	src := &pagedSource{txns: makeTxns(5), pageError: "database offline"}

	_, _, err := FetchAll(context.Background(), src, session, Query{}, 10, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "database offline")
}

func TestFetchAllTransportError(t *testing.T) {
	src := &pagedSource{txns: makeTxns(30), failPage: 2}

	_, _, err := FetchAll(context.Background(), src, session, Query{}, 10, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch page 2")
}

func TestFetchAllRequiresSession(t *testing.T) {
	_, _, err := FetchAll(context.Background(), &pagedSource{}, Session{}, Query{}, 10, 0)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestFetchAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := FetchAll(ctx, &pagedSource{txns: makeTxns(3)}, session, Query{}, 10, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPaginate(t *testing.T) {
	txns := makeTxns(5)

	p := Paginate(txns, 2, 2)
	assert.Equal(t, 5, p.TotalCount)
	require.Len(t, p.Items, 2)
	assert.Equal(t, "t2", p.Items[0].ID)

	p = Paginate(txns, 3, 2)
	assert.Len(t, p.Items, 1)

	p = Paginate(txns, 9, 2)
	assert.NotNil(t, p.Items)
	assert.Empty(t, p.Items)
}

func TestMatchQuery(t *testing.T) {
	txn := models.Transaction{Date: models.ParseDate("2024-01-10"), Category: "Food"}
	bad := models.Transaction{Date: models.ParseDate("???")}

	jan := Query{Start: models.Day{Year: 2024, Month: 1, Day: 1}, End: models.Day{Year: 2024, Month: 1, Day: 31}}

	assert.True(t, MatchQuery(&txn, Query{}))
	assert.True(t, MatchQuery(&txn, jan))
	assert.False(t, MatchQuery(&bad, jan))
	assert.True(t, MatchQuery(&bad, Query{}))
	assert.True(t, MatchQuery(&txn, Query{Categories: []string{"food"}}))
	assert.False(t, MatchQuery(&txn, Query{Categories: []string{"rent"}}))
	assert.True(t, MatchQuery(&bad, Query{Categories: []string{"Uncategorized"}}))
}
