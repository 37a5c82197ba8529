// Package dashboard assembles what the dashboard shows: it fetches
// transactions (and, when configured, backend spending patterns) for a user,
// runs them through the analytics pipeline and reports the outcome as a View.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"spendscope/internal/models"
	"spendscope/internal/services/analytics"
	"spendscope/internal/source"
)

// View states
const (
	StateOK          = "ok"
	StateEmpty       = "empty"
	StateUnavailable = "unavailable"
)

const emptyMessage = "No transactions yet. Upload a CSV or JSON export to get started."

// PatternSource provides backend pre-aggregated spending patterns
type PatternSource interface {
	FetchSpendingPatterns(ctx context.Context, session source.Session) (*analytics.SpendingPatterns, error)
}

// Options configures a Service
type Options struct {
	// Patterns is optional; without it breakdowns are always computed locally
	Patterns PatternSource
	PageSize int
	MaxPages int
	Logger   zerolog.Logger
}

// Service builds dashboard views
type Service struct {
	src      source.Source
	patterns PatternSource
	pageSize int
	maxPages int
	log      zerolog.Logger
}

// New creates a Service reading from src
func New(src source.Source, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = source.DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = source.DefaultMaxPages
	}
	return &Service{
		src:      src,
		patterns: opts.Patterns,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      opts.Logger.With().Str("component", "dashboard").Logger(),
	}
}

// Request describes one dashboard view
type Request struct {
	Session  source.Session
	Criteria analytics.Criteria
	// Comparison is "", analytics.ComparePrevious or analytics.CompareYear
	Comparison string
}

// View is the assembled dashboard. Result is nil only when State is
// StateUnavailable.
type View struct {
	State          string                `json:"state"`
	Message        string                `json:"message,omitempty"`
	Result         *analytics.Result     `json:"result,omitempty"`
	Comparison     *analytics.Comparison `json:"comparison,omitempty"`
	Criteria       analytics.Criteria    `json:"criteria"`
	FilterFallback bool                  `json:"filter_fallback"`
	// Total is the record count the source reported; larger than the
	// result's TransactionCount when paging was cut short
	Total int `json:"total"`
}

// Build fetches and aggregates the transactions for req. Source failures are
// reported through View.State, not the error; the error is reserved for a
// request without a session.
func (s *Service) Build(ctx context.Context, req Request) (*View, error) {
	if !req.Session.Valid() {
		return nil, source.ErrNoSession
	}

	view := &View{Criteria: req.Criteria}
	crit := req.Criteria
	query := queryFor(crit)

	var (
		txns     []models.Transaction
		total    int
		prev     []models.Transaction
		prevOK   bool
		patterns *analytics.SpendingPatterns
		patErr   error
	)

	prevStart, prevEnd, wantPrev := analytics.PreviousPeriod(crit.Start, crit.End, req.Comparison)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txns, total, err = source.FetchAll(gctx, s.src, req.Session, query, s.pageSize, s.maxPages)
		return err
	})
	if wantPrev {
		g.Go(func() error {
			prev, prevOK = s.fetchPrevious(gctx, req.Session, crit, prevStart, prevEnd)
			return nil
		})
	}
	// backend patterns cover the whole history, so they only apply unfiltered
	if s.patterns != nil && crit.IsZero() {
		g.Go(func() error {
			patterns, patErr = s.patterns.FetchSpendingPatterns(gctx, req.Session)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.log.Error().Err(err).Str("user_id", req.Session.UserID).Msg("failed to fetch transactions")
		view.State = StateUnavailable
		view.Message = fmt.Sprintf("Transactions could not be loaded: %v", err)
		return view, nil
	}

	filtered := analytics.Filter(txns, crit)
	if len(filtered) == 0 && !crit.IsZero() {
		// nothing matched; show everything rather than an empty dashboard
		all, allTotal, err := source.FetchAll(ctx, s.src, req.Session, source.Query{}, s.pageSize, s.maxPages)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", req.Session.UserID).Msg("failed to fetch unfiltered transactions")
			view.State = StateUnavailable
			view.Message = fmt.Sprintf("Transactions could not be loaded: %v", err)
			return view, nil
		}
		filtered, txns, total = all, all, allTotal
		view.FilterFallback = true
	}

	result := analytics.Aggregate(filtered)
	view.Total = total

	if view.FilterFallback && len(filtered) > 0 {
		result.AddWarning(analytics.WarnFilterFallback, 0, "No transactions matched the filters; showing all transactions")
	}
	if total > len(txns) {
		result.AddWarning(analytics.WarnTruncated, total-len(txns),
			fmt.Sprintf("Showing %d of %d transactions", len(txns), total))
	}

	switch {
	case patErr != nil:
		s.log.Warn().Err(patErr).Str("user_id", req.Session.UserID).Msg("backend analytics unavailable")
		result.AddWarning(analytics.WarnBackendFailed, 0, "Backend analytics unavailable; breakdowns computed locally")
	case patterns != nil && !result.IsEmpty():
		result = analytics.Reconcile(result, patterns)
	}

	view.Result = result
	if result.IsEmpty() {
		view.State = StateEmpty
		view.Message = emptyMessage
		return view, nil
	}
	view.State = StateOK

	if wantPrev && !view.FilterFallback {
		var previous *analytics.Result
		if prevOK {
			previous = analytics.Aggregate(prev)
		}
		cmp := analytics.Compare(result, previous)
		cmp.Kind, cmp.PreviousStart, cmp.PreviousEnd = req.Comparison, prevStart, prevEnd
		view.Comparison = cmp
	}

	return view, nil
}

// fetchPrevious loads the comparison window. A failure only costs the
// comparison, so it is logged and reported as no data.
func (s *Service) fetchPrevious(ctx context.Context, session source.Session, crit analytics.Criteria, start, end models.Day) ([]models.Transaction, bool) {
	crit.Start, crit.End = start, end
	txns, _, err := source.FetchAll(ctx, s.src, session, queryFor(crit), s.pageSize, s.maxPages)
	if err != nil {
		s.log.Warn().Err(err).Str("user_id", session.UserID).Msg("failed to fetch comparison period")
		return nil, false
	}
	return analytics.Filter(txns, crit), true
}

// Drilldown is a single category examined on its own
type Drilldown struct {
	Category     string               `json:"category"`
	Result       *analytics.Result    `json:"result"`
	Transactions []models.Transaction `json:"transactions"`
}

// Drilldown aggregates the transactions of one category within crit
func (s *Service) Drilldown(ctx context.Context, session source.Session, category string, crit analytics.Criteria) (*Drilldown, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	crit.Categories = []string{category}

	txns, _, err := source.FetchAll(ctx, s.src, session, queryFor(crit), s.pageSize, s.maxPages)
	if err != nil {
		return nil, err
	}
	filtered := analytics.Filter(txns, crit)

	return &Drilldown{
		Category:     category,
		Result:       analytics.Aggregate(filtered),
		Transactions: newestFirst(filtered),
	}, nil
}

// List returns one page of the transactions matching crit. When crit only
// holds what a backend can evaluate, the page is passed through from the
// source; amount bounds and search are applied locally over the full set.
func (s *Service) List(ctx context.Context, session source.Session, crit analytics.Criteria, page, pageSize int) (*source.Page, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	q := queryFor(crit)

	if !needsLocalFilter(crit) {
		p, err := s.src.FetchTransactions(ctx, session, q, page, pageSize)
		if err != nil {
			return nil, err
		}
		if p.Error != "" {
			return nil, fmt.Errorf("%w: %s", source.ErrUpstream, p.Error)
		}
		return p, nil
	}

	txns, _, err := source.FetchAll(ctx, s.src, session, q, s.pageSize, s.maxPages)
	if err != nil {
		return nil, err
	}
	return source.Paginate(analytics.Filter(txns, crit), page, pageSize), nil
}

// needsLocalFilter reports whether crit has predicates no Query carries
func needsLocalFilter(crit analytics.Criteria) bool {
	return crit.MinAmount.IsPositive() ||
		crit.MaxAmount.IsPositive() ||
		strings.TrimSpace(crit.Search) != ""
}

// queryFor pushes the parts of crit a backend can evaluate into a query
func queryFor(crit analytics.Criteria) source.Query {
	q := source.Query{Categories: crit.Categories}
	if crit.HasDateRange() {
		q.Start, q.End = crit.Start, crit.End
	}
	return q
}

// newestFirst returns txns ordered by date descending, undated last
func newestFirst(txns []models.Transaction) []models.Transaction {
	out := make([]models.Transaction, len(txns))
	copy(out, txns)
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i].Date.CalendarDay()
		b, bok := out[j].Date.CalendarDay()
		if aok != bok {
			return aok
		}
		return aok && a.After(b)
	})
	return out
}
