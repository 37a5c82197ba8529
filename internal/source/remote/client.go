// Package remote talks to the finance backend's JSON API: paged transaction
// listings and the pre-aggregated spending patterns.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"spendscope/internal/models"
	"spendscope/internal/services/analytics"
	"spendscope/internal/source"
)

const (
	transactionsEndpoint = "/api/transactions"
	patternsEndpoint     = "/api/analytics/spending-patterns"

	contentType = "application/json"
	userAgent   = "spendscope/1"

	// DefaultTimeout bounds a single HTTP attempt
	DefaultTimeout = 15 * time.Second
)

// Options configures a Client
type Options struct {
	BaseURL      string
	HTTPClient   *http.Client
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Logger       zerolog.Logger
}

// Client is a source.Source backed by the remote API
type Client struct {
	baseURL string
	http    *retryablehttp.Client
	log     zerolog.Logger
}

// New creates a Client. Retries cover connection errors, 429 and 5xx.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrap(err, "invalid base url")
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if opts.Timeout > 0 {
		opts.HTTPClient.Timeout = opts.Timeout
	}

	log := opts.Logger.With().Str("component", "remote").Logger()

	rc := retryablehttp.NewClient()
	rc.HTTPClient = opts.HTTPClient
	rc.RetryMax = opts.MaxRetries
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	// hand the final response back so status codes map to our errors
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = &retryLogger{log: log}

	return &Client{baseURL: base, http: rc, log: log}, nil
}

// FetchTransactions implements source.Source
func (c *Client) FetchTransactions(ctx context.Context, session source.Session, q source.Query, page, pageSize int) (*source.Page, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}
	if pageSize <= 0 {
		pageSize = source.DefaultPageSize
	}
	if page < 1 {
		page = 1
	}

	params := url.Values{}
	params.Set("user_id", session.UserID)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))
	if q.HasDateRange() {
		params.Set("start", q.Start.String())
		params.Set("end", q.End.String())
	}
	for _, cat := range q.Categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			params.Add("category", cat)
		}
	}

	var p source.Page
	if err := c.get(ctx, session, transactionsEndpoint, params, &p); err != nil {
		return nil, err
	}
	if p.Items == nil {
		p.Items = []models.Transaction{}
	}
	return &p, nil
}

// FetchSpendingPatterns returns the backend's pre-aggregated breakdowns
func (c *Client) FetchSpendingPatterns(ctx context.Context, session source.Session) (*analytics.SpendingPatterns, error) {
	if !session.Valid() {
		return nil, source.ErrNoSession
	}

	params := url.Values{}
	params.Set("user_id", session.UserID)

	var resp patternsResponse
	if err := c.get(ctx, session, patternsEndpoint, params, &resp); err != nil {
		return nil, err
	}

	out := &analytics.SpendingPatterns{
		Categories: resp.SpendingPatterns.Categories,
		Merchants:  resp.SpendingPatterns.Merchants,
	}
	for _, in := range resp.PatternInsights {
		if s := strings.TrimSpace(string(in)); s != "" {
			out.Insights = append(out.Insights, s)
		}
	}
	return out, nil
}

type patternsResponse struct {
	SpendingPatterns struct {
		Categories []analytics.CategoryPattern `json:"categories"`
		Merchants  []analytics.MerchantPattern `json:"merchants"`
	} `json:"spending_patterns"`
	PatternInsights []insight `json:"pattern_insights"`
}

// insight accepts either a bare string or an object carrying the text
type insight string

func (in *insight) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*in = insight(s)
		return nil
	}
	var obj struct {
		Message     string `json:"message"`
		Insight     string `json:"insight"`
		Description string `json:"description"`
		Title       string `json:"title"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		// unknown shapes are dropped, not fatal
		*in = ""
		return nil
	}
	for _, s := range []string{obj.Message, obj.Insight, obj.Description, obj.Title} {
		if s != "" {
			*in = insight(s)
			return nil
		}
	}
	*in = ""
	return nil
}

func (c *Client) get(ctx context.Context, session source.Session, endpoint string, params url.Values, result interface{}) error {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", contentType)
	req.Header.Set("User-Agent", userAgent)
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	duration := time.Since(start)
	// after exhausted retries resp is the last response; its status wins over err
	if resp == nil {
		if err == nil {
			err = errors.New("empty response")
		}
		if ctx.Err() != nil {
			err = errors.Wrap(ErrTimeout, ctx.Err().Error())
		} else {
			err = errors.Wrap(err, "request failed")
		}
		c.capture(ctx, session, endpoint, err)
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	c.log.Debug().
		Str("endpoint", endpoint).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("size", len(body)).
		Msg("backend response")

	if resp.StatusCode != http.StatusOK {
		err := handleHTTPError(resp.StatusCode, body)
		if resp.StatusCode >= 500 {
			c.capture(ctx, session, endpoint, err)
		}
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		err = errors.Wrap(err, "failed to parse response")
		c.capture(ctx, session, endpoint, err)
		return err
	}
	return nil
}

// capture reports err to Sentry. Without an initialized Sentry client the hub
// drops the event.
func (c *Client) capture(ctx context.Context, session source.Session, endpoint string, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("endpoint", endpoint)
		scope.SetUser(sentry.User{ID: session.UserID})
		hub.CaptureException(err)
	})
	c.log.Warn().Err(err).Str("endpoint", endpoint).Msg("backend request failed")
}

// handleHTTPError maps a non-200 response to an error
func handleHTTPError(statusCode int, body []byte) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Code    string `json:"error_code"`
	}
	_ = json.Unmarshal(body, &errResp)

	msg := errResp.Message
	if msg == "" {
		msg = errResp.Error
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrNotAuthenticated
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrTimeout
	case http.StatusBadRequest:
		return &APIError{Code: "BAD_REQUEST", Message: msg, StatusCode: statusCode}
	}

	if statusCode >= 500 {
		baseMsg := fmt.Sprintf("server error: %d", statusCode)
		if msg != "" {
			baseMsg = fmt.Sprintf("%s: %s", baseMsg, msg)
		}
		return &APIError{Code: "SERVER_ERROR", Message: baseMsg, StatusCode: statusCode, Err: ErrServerError}
	}
	return &APIError{Code: "HTTP_ERROR", Message: fmt.Sprintf("HTTP error: %d", statusCode), StatusCode: statusCode}
}

// retryLogger adapts zerolog to retryablehttp.LeveledLogger
type retryLogger struct {
	log zerolog.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}
