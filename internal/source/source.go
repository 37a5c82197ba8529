// Package source defines where transactions come from. Backends (uploaded
// files, sqlite, the remote API) implement Source; callers page through them
// with FetchAll.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"spendscope/internal/models"
)

const (
	// DefaultPageSize is used when a caller asks for a non-positive page size
	DefaultPageSize = 200
	// DefaultMaxPages bounds FetchAll against a backend that never stops paging
	DefaultMaxPages = 50
)

var (
	// ErrUpstream wraps an error reported inside a page rather than as a
	// transport failure
	ErrUpstream = errors.New("transaction source reported an error")
	// ErrNoSession is returned when a request carries no user
	ErrNoSession = errors.New("no user session")
)

// Session identifies the user a fetch is made for. It is passed explicitly on
// every call; there is no ambient auth state.
type Session struct {
	UserID string
	Token  string
}

// Valid reports whether the session names a user
func (s Session) Valid() bool {
	return strings.TrimSpace(s.UserID) != ""
}

// Query narrows a fetch on the backend side. Backends may ignore any part of
// it; the analytics filter is always applied again locally.
type Query struct {
	Start      models.Day
	End        models.Day
	Categories []string
}

// HasDateRange reports whether both bounds are set
func (q Query) HasDateRange() bool {
	return !q.Start.IsZero() && !q.End.IsZero()
}

// Page is one page of transactions
type Page struct {
	Items      []models.Transaction `json:"items"`
	TotalCount int                  `json:"total_count"`
	Error      string               `json:"error,omitempty"`
}

// Source fetches pages of transactions for a user. page is 1-based.
type Source interface {
	FetchTransactions(ctx context.Context, session Session, q Query, page, pageSize int) (*Page, error)
}

// FetchAll walks pages until TotalCount is reached, a short page arrives or
// maxPages is hit. It returns the transactions and the total the backend
// reported, which is larger than len(txns) when paging stopped early.
func FetchAll(ctx context.Context, src Source, session Session, q Query, pageSize, maxPages int) ([]models.Transaction, int, error) {
	if !session.Valid() {
		return nil, 0, ErrNoSession
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var all []models.Transaction
	total := 0
	for page := 1; page <= maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		p, err := src.FetchTransactions(ctx, session, q, page, pageSize)
		if err != nil {
			return nil, 0, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if p.Error != "" {
			return nil, 0, fmt.Errorf("%w: %s", ErrUpstream, p.Error)
		}

		all = append(all, p.Items...)
		total = p.TotalCount
		if len(p.Items) < pageSize || (total > 0 && len(all) >= total) {
			break
		}
	}

	if total < len(all) {
		total = len(all)
	}
	return all, total, nil
}

// Paginate slices an in-memory result set the way a paged backend would
func Paginate(txns []models.Transaction, page, pageSize int) *Page {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	p := &Page{Items: []models.Transaction{}, TotalCount: len(txns)}
	start := (page - 1) * pageSize
	if start >= len(txns) {
		return p
	}
	end := start + pageSize
	if end > len(txns) {
		end = len(txns)
	}
	p.Items = append(p.Items, txns[start:end]...)
	return p
}

// MatchQuery reports whether t satisfies q. Used by backends that cannot push
// the query down.
func MatchQuery(t *models.Transaction, q Query) bool {
	if q.HasDateRange() {
		day, ok := t.Date.CalendarDay()
		if !ok || day.Before(q.Start) || day.After(q.End) {
			return false
		}
	}
	if len(q.Categories) == 0 {
		return true
	}
	cat := t.CategoryKey()
	for _, c := range q.Categories {
		if models.LabelKey(c) == cat {
			return true
		}
	}
	return false
}
