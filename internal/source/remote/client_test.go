package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendscope/internal/models"
	"spendscope/internal/source"
)

var session = source.Session{UserID: "u1", Token: "secret"}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Options{
		BaseURL:      srv.URL + "/",
		MaxRetries:   0,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return c
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestFetchTransactionsSendsQuery(t *testing.T) {
	var got *http.Request
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[{"id":"a","amount":"-12.5","date":"2024-01-03","category":"Food"},
			{"id":"b","amount":"oops","date":"2024-01-04"}],"total_count":7}`))
	}))

	q := source.Query{
		Start:      models.Day{Year: 2024, Month: time.January, Day: 1},
		End:        models.Day{Year: 2024, Month: time.January, Day: 31},
		Categories: []string{"Food", " ", "Rent"},
	}
	page, err := c.FetchTransactions(context.Background(), session, q, 2, 25)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, "/api/transactions", got.URL.Path)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	params := got.URL.Query()
	assert.Equal(t, "u1", params.Get("user_id"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "25", params.Get("page_size"))
	assert.Equal(t, "2024-01-01", params.Get("start"))
	assert.Equal(t, "2024-01-31", params.Get("end"))
	assert.Equal(t, []string{"Food", "Rent"}, params["category"])

	assert.Equal(t, 7, page.TotalCount)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].Amount.Equal(models.MustAmount("-12.5").Decimal))
	assert.True(t, page.Items[1].Amount.Invalid)
}

func TestFetchTransactionsEmptyPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"total_count":0}`))
	}))

	page, err := c.FetchTransactions(context.Background(), session, source.Query{}, 1, 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestFetchAllThroughClient(t *testing.T) {
	const total = 5
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

		resp := source.Page{Items: []models.Transaction{}, TotalCount: total}
		for i := (page - 1) * size; i < page*size && i < total; i++ {
			resp.Items = append(resp.Items, models.Transaction{
				ID:     strconv.Itoa(i),
				Amount: models.MustAmount("-1"),
				Date:   models.ParseDate("2024-01-01"),
			})
		}
		json.NewEncoder(w).Encode(resp)
	}))

	txns, n, err := source.FetchAll(context.Background(), c, session, source.Query{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, total, n)
	assert.Len(t, txns, total)
}

func TestPageErrorSurfacesAsUpstream(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[],"total_count":0,"error":"ledger offline"}`))
	}))

	_, _, err := source.FetchAll(context.Background(), c, session, source.Query{}, 10, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrUpstream)
	assert.Contains(t, err.Error(), "ledger offline")
}

func TestHTTPErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		body   string
		want   error
	}{
		{http.StatusUnauthorized, `{}`, ErrNotAuthenticated},
		{http.StatusForbidden, `{}`, ErrNotAuthenticated},
		{http.StatusNotFound, `{}`, ErrNotFound},
		{http.StatusTooManyRequests, `{}`, ErrRateLimited},
		{http.StatusGatewayTimeout, `{}`, ErrTimeout},
		{http.StatusInternalServerError, `{"message":"boom"}`, ErrServerError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))

			_, err := c.FetchTransactions(context.Background(), session, source.Query{}, 1, 10)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBadRequestIsAPIError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"page_size too large"}`))
	}))

	_, err := c.FetchTransactions(context.Background(), session, source.Query{}, 1, 10)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "BAD_REQUEST", apiErr.Code)
	assert.Equal(t, "page_size too large", apiErr.Message)
	assert.False(t, IsRetryable(err))
}

func TestRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"items":[],"total_count":0}`))
	}))
	defer srv.Close()

	c, err := New(Options{
		BaseURL:      srv.URL,
		MaxRetries:   3,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       zerolog.Nop(),
	})
	require.NoError(t, err)

	_, err = c.FetchTransactions(context.Background(), session, source.Query{}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchSpendingPatterns(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/analytics/spending-patterns", r.URL.Path)
		assert.Equal(t, "u1", r.URL.Query().Get("user_id"))
		w.Write([]byte(`{
			"spending_patterns": {
				"categories": [{"category":"Rent","amount":"1200","count":1},{"category":"Food","amount":80.5,"count":4}],
				"merchants": [{"merchant":"Landlord","amount":1200,"count":1}]
			},
			"pattern_insights": ["Rent is your largest expense", {"message":"Food is trending up"}, 42, {"other":"x"}]
		}`))
	}))

	p, err := c.FetchSpendingPatterns(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, p.Categories, 2)
	assert.Equal(t, "Food", p.Categories[1].Category)
	assert.True(t, p.Categories[1].Amount.Equal(models.MustAmount("80.5").Decimal))
	require.Len(t, p.Merchants, 1)
	assert.Equal(t, []string{"Rent is your largest expense", "Food is trending up"}, p.Insights)
}

func TestNoSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	}))

	_, err := c.FetchTransactions(context.Background(), source.Session{}, source.Query{}, 1, 10)
	assert.ErrorIs(t, err, source.ErrNoSession)
	_, err = c.FetchSpendingPatterns(context.Background(), source.Session{})
	assert.ErrorIs(t, err, source.ErrNoSession)
}

func TestCanceledContextIsTimeout(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchTransactions(ctx, session, source.Query{}, 1, 10)
	assert.ErrorIs(t, err, ErrTimeout)
}
