// Package main smoke-tests the endpoints of a running spendscope server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"spendscope/internal/logger"
)

type endpoint struct {
	path        string
	status      int
	contentType string
	contains    []string
	// anonymous requests are sent without a session
	anonymous bool
}

const (
	jsonType = "application/json"
	csvType  = "text/csv"
	pdfType  = "application/pdf"
)

var endpoints = []endpoint{
	{path: "/api/health", contentType: jsonType, contains: []string{`"status":"ok"`}},

	{path: "/api/dashboard", contentType: jsonType, contains: []string{`"state"`}},
	{path: "/api/dashboard?comparison=previous", contentType: jsonType, contains: []string{`"state"`}},
	{path: "/api/dashboard?start=2024-02-01&end=2024-01-01", status: http.StatusBadRequest, contentType: jsonType, contains: []string{`"error"`}},
	{path: "/api/dashboard", status: http.StatusUnauthorized, contentType: jsonType, anonymous: true},
	{path: "/dashboard/charts/data/monthly", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/category", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/cashflow", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/merchants", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/weekly", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/daily", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/cumulative", contentType: jsonType, contains: []string{`"data"`}},
	{path: "/dashboard/charts/data/forecast", contentType: jsonType, contains: []string{`"forecast"`}},
	{path: "/dashboard/charts/data/sankey", status: http.StatusBadRequest, contentType: jsonType},

	{path: "/api/transactions", contentType: jsonType, contains: []string{`"total_count"`}},
	{path: "/api/transactions?q=zzzz-no-match", contentType: jsonType, contains: []string{`"total_count":0`}},

	{path: "/export/csv?report=monthly", contentType: csvType, contains: []string{"Month,Income"}},
	{path: "/export/pdf", contentType: pdfType, contains: []string{"%PDF-"}},
}

// outcome is the verdict on one endpoint
type outcome struct {
	endpoint endpoint
	status   int
	elapsed  time.Duration
	err      error
}

type checker struct {
	client  *http.Client
	baseURL string
	user    string
	token   string
}

func main() {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	baseURL := fs.String("url", "http://localhost:8080", "Base URL of the server to validate")
	user := fs.String("user", "demo", "User id sent as X-User-ID")
	token := fs.String("token", "", "Bearer token, if the source requires one")
	verbose := fs.Bool("v", false, "Log every endpoint, not only failures")
	timeout := fs.Duration("timeout", 10*time.Second, "Per-request timeout")
	fs.Parse(os.Args[1:])

	c := &checker{
		client:  &http.Client{Timeout: *timeout},
		baseURL: strings.TrimRight(*baseURL, "/"),
		user:    *user,
		token:   *token,
	}
	log := logger.New(*verbose)

	if failed := run(context.Background(), c, endpoints, log, os.Stdout); failed > 0 {
		os.Exit(1)
	}
}

// run checks every endpoint, logs failures, prints a summary table to out and
// returns the number of failures
func run(ctx context.Context, c *checker, eps []endpoint, log zerolog.Logger, out io.Writer) int {
	log.Info().Str("url", c.baseURL).Int("endpoints", len(eps)).Msg("validating server")

	outcomes := make([]outcome, 0, len(eps))
	failed := 0
	for _, ep := range eps {
		o := c.check(ctx, ep)
		outcomes = append(outcomes, o)
		if o.err != nil {
			failed++
			log.Error().Err(o.err).Str("path", ep.path).Int("status", o.status).Msg("endpoint failed")
			continue
		}
		log.Debug().Str("path", ep.path).Dur("elapsed", o.elapsed).Msg("endpoint ok")
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RESULT\tSTATUS\tTIME\tPATH")
	for _, o := range outcomes {
		verdict := "ok"
		if o.err != nil {
			verdict = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", verdict, o.status, o.elapsed.Round(time.Millisecond), o.endpoint.path)
	}
	tw.Flush()
	fmt.Fprintf(out, "\n%d passed, %d failed\n", len(eps)-failed, failed)

	return failed
}

func (c *checker) check(ctx context.Context, ep endpoint) outcome {
	start := time.Now()
	o := outcome{endpoint: ep}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+ep.path, nil)
	if err != nil {
		o.err = fmt.Errorf("build request: %w", err)
		return o
	}
	if !ep.anonymous {
		req.Header.Set("X-User-ID", c.user)
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		o.err = fmt.Errorf("request: %w", err)
		return o
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	o.status, o.elapsed = resp.StatusCode, time.Since(start)
	if err != nil {
		o.err = fmt.Errorf("read body: %w", err)
		return o
	}
	o.err = verify(ep, resp, body)
	return o
}

// verify compares a response against what ep expects
func verify(ep endpoint, resp *http.Response, body []byte) error {
	want := ep.status
	if want == 0 {
		want = http.StatusOK
	}
	if resp.StatusCode != want {
		return fmt.Errorf("status %d, want %d", resp.StatusCode, want)
	}

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, ep.contentType) {
		return fmt.Errorf("content type %q, want %q", ct, ep.contentType)
	}
	if ep.contentType == jsonType && !json.Valid(body) {
		return errors.New("body is not valid JSON")
	}

	var missing []string
	for _, needle := range ep.contains {
		if !strings.Contains(string(body), needle) {
			missing = append(missing, needle)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("body lacks %s", strings.Join(missing, ", "))
	}
	return nil
}
