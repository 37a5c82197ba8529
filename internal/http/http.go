package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spendscope/internal/logger"
	"spendscope/internal/models"
	"spendscope/internal/services/analytics"
	"spendscope/internal/source"
)

const dateLayout = "2006-01-02"

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse logs and sends a JSON error response
func ErrorResponse(w http.ResponseWriter, r *http.Request, message string, statusCode int) {
	log := logger.FromContext(r.Context())
	event := log.Warn()
	if statusCode >= 500 {
		event = log.Error()
	}
	event.Int("status", statusCode).Str("path", r.URL.Path).Msg(message)
	WriteJSON(w, statusCode, map[string]string{"error": message})
}

// Session reads the caller's identity: a bearer token plus the user id from
// the X-User-ID header or the user_id query parameter
func Session(r *http.Request) source.Session {
	s := source.Session{
		UserID: strings.TrimSpace(r.Header.Get("X-User-ID")),
	}
	if s.UserID == "" {
		s.UserID = strings.TrimSpace(r.URL.Query().Get("user_id"))
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		s.Token = strings.TrimSpace(auth[7:])
	}
	return s
}

// ParseCriteria reads filter criteria from the query string: start and end
// (YYYY-MM-DD), min and max amounts, category (repeatable or comma
// separated) and q for free-text search. Absent parameters leave that
// constraint open.
func ParseCriteria(r *http.Request) (analytics.Criteria, error) {
	q := r.URL.Query()
	var c analytics.Criteria

	var err error
	if c.Start, err = parseDay(q.Get("start")); err != nil {
		return c, fmt.Errorf("invalid start date: %w", err)
	}
	if c.End, err = parseDay(q.Get("end")); err != nil {
		return c, fmt.Errorf("invalid end date: %w", err)
	}
	if c.HasDateRange() && c.End.Before(c.Start) {
		return c, fmt.Errorf("end date %s is before start date %s", c.End, c.Start)
	}

	if c.MinAmount, err = parseAmount(q.Get("min")); err != nil {
		return c, fmt.Errorf("invalid min amount: %w", err)
	}
	if c.MaxAmount, err = parseAmount(q.Get("max")); err != nil {
		return c, fmt.Errorf("invalid max amount: %w", err)
	}

	for _, v := range q["category"] {
		for _, cat := range strings.Split(v, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				c.Categories = append(c.Categories, cat)
			}
		}
	}
	c.Search = strings.TrimSpace(q.Get("q"))
	return c, nil
}

// ParseComparison returns the comparison kind, or "" when absent or unknown
func ParseComparison(r *http.Request) string {
	switch kind := r.URL.Query().Get("comparison"); kind {
	case analytics.ComparePrevious, analytics.CompareYear:
		return kind
	default:
		return ""
	}
}

func parseDay(s string) (models.Day, error) {
	if s = strings.TrimSpace(s); s == "" {
		return models.Day{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return models.Day{}, err
	}
	return models.DayOf(t), nil
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s = strings.TrimSpace(s); s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// RequestLogger attaches a request-scoped logger to the context and logs
// each request when it completes
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			reqLog := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context(), reqLog)))

			reqLog.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Msg("HTTP request")
		})
	}
}

// Recovery recovers from panics and returns a 500 error
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.Error().
						Interface("error", err).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Msg("Panic recovered")

					WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
