// Package testutil provides HTTP testing helpers for the spendscope server.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestUser is the user id test servers send by default
const TestUser = "test-user"

// TestServer wraps httptest.Server with convenience methods. Requests carry
// the configured user id in X-User-ID unless it is empty.
type TestServer struct {
	Server  *httptest.Server
	BaseURL string
	UserID  string
	t       *testing.T
}

// ProjectRoot returns the root directory of the project.
// It works by finding the go.mod file.
func ProjectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("could not get caller info")
	}

	dir := filepath.Dir(filename)
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			panic("could not find project root (go.mod)")
		}
		dir = parent
	}
}

// TestConfig returns SPEND_* settings for a server rooted in dataDir
func TestConfig(dataDir string) map[string]string {
	return map[string]string{
		"SPEND_DATA_DIR":     dataDir,
		"SPEND_DATA_BACKEND": "files",
		"SPEND_DEBUG":        "true",
		"SPEND_LISTEN_ADDR":  ":0",
	}
}

// SetTestEnv points the SPEND_* environment at a fresh temporary data
// directory for the duration of the test and returns that directory
func SetTestEnv(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	for k, v := range TestConfig(dir) {
		t.Setenv(k, v)
	}
	return dir
}

// WriteFixture writes an uploaded file for TestUser under dataDir
func WriteFixture(t *testing.T, dataDir, name, content string) {
	t.Helper()

	uploads := filepath.Join(dataDir, "uploads", TestUser)
	if err := os.MkdirAll(uploads, 0755); err != nil {
		t.Fatalf("create uploads dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(uploads, name), []byte(content), 0644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
}

// NewTestServer creates a new test server using the application's router
func NewTestServer(t *testing.T, router http.Handler) *TestServer {
	t.Helper()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &TestServer{
		Server:  server,
		BaseURL: server.URL,
		UserID:  TestUser,
		t:       t,
	}
}

// GET performs a GET request to the given path
func (ts *TestServer) GET(path string) *http.Response {
	ts.t.Helper()
	return ts.do(http.MethodGet, path, "", nil)
}

// GETWithQuery performs a GET request with query parameters
func (ts *TestServer) GETWithQuery(path string, query url.Values) *http.Response {
	ts.t.Helper()
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return ts.do(http.MethodGet, path, "", nil)
}

// POST performs a POST request to the given path
func (ts *TestServer) POST(path string, contentType string, body io.Reader) *http.Response {
	ts.t.Helper()
	return ts.do(http.MethodPost, path, contentType, body)
}

func (ts *TestServer) do(method, path, contentType string, body io.Reader) *http.Response {
	ts.t.Helper()

	req, err := http.NewRequest(method, ts.BaseURL+path, body)
	if err != nil {
		ts.t.Fatalf("%s %s: %v", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if ts.UserID != "" {
		req.Header.Set("X-User-ID", ts.UserID)
	}

	resp, err := ts.Server.Client().Do(req)
	if err != nil {
		ts.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// ReadBody reads and returns the response body as a string
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response body: %v", err)
	}
	return string(body)
}
