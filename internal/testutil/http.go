package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// HTTPResult captures HTTP response details for test assertions
type HTTPResult struct {
	Code    int
	Headers http.Header
	Body    []byte
}

// Header represents an HTTP header key-value pair
type Header struct {
	Key   string
	Value string
}

// Get performs a GET request against the handler
func Get(
	handler http.Handler,
	url string,
	headers ...Header,
) HTTPResult {
	req := httptest.NewRequest(http.MethodGet, url, nil)
	res := httptest.NewRecorder()
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}
	handler.ServeHTTP(res, req)

	return HTTPResult{Code: res.Code, Headers: res.Header(), Body: res.Body.Bytes()}
}

// ExpectStatus validates the HTTP status code and fails the test if it doesn't match
func ExpectStatus(
	t *testing.T,
	expected int,
	result HTTPResult,
) {
	t.Helper()
	if result.Code != expected {
		t.Fatalf("expected status %d, got %d. Body: %s", expected, result.Code, string(result.Body))
	}
}

// ExpectHeader validates a response header value
func ExpectHeader(
	t *testing.T,
	result HTTPResult,
	key string,
	want string,
) {
	t.Helper()
	if got := result.Headers.Get(key); got != want {
		t.Fatalf("expected header %s=%q, got %q", key, want, got)
	}
}

// ExpectEmptyBody fails the test if the response carried a body
func ExpectEmptyBody(
	t *testing.T,
	result HTTPResult,
) {
	t.Helper()
	if len(result.Body) != 0 {
		t.Fatalf("expected empty body, got: %s", string(result.Body))
	}
}
