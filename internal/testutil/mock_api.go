// Package testutil provides testing utilities for the NR API client.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock NR API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockAPI is a configurable mock NR API server for testing. Handlers and
// counters are keyed by the last path segment, the identifier.
type MockAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]http.HandlerFunc

	// APIKeyHeader/APIKey, when set, make every request without a matching
	// header fail with 401.
	apiKeyHeader string
	apiKey       string

	// Tracking
	requestCount      int
	conditionalCount  int
	pathCounts        map[string]int
	lastRequestHeader http.Header
	lastRequestPath   string
	lastRequestQuery  string
}

// NewMockAPI creates a new mock NR API server.
func NewMockAPI() *MockAPI {
	mock := &MockAPI{
		handlers:   make(map[string]http.HandlerFunc),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identifier := path.Base(r.URL.Path)

		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[identifier]++
		mock.lastRequestHeader = r.Header.Clone()
		mock.lastRequestPath = r.URL.Path
		mock.lastRequestQuery = r.URL.RawQuery

		// Track conditional requests
		if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
			mock.conditionalCount++
		}
		header, key := mock.apiKeyHeader, mock.apiKey
		handler, exists := mock.handlers[identifier]
		mock.mu.Unlock()

		if header != "" && r.Header.Get(header) != key {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error": "invalid api key"}`))
			return
		}

		if exists {
			handler(w, r)
			return
		}

		defaultHandler(w, identifier)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockAPI) Close() {
	m.server.Close()
}

// RequireAPIKey rejects requests whose header does not carry key.
func (m *MockAPI) RequireAPIKey(header, key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeyHeader = header
	m.apiKey = key
}

// SetHandler sets a custom handler for an identifier.
func (m *MockAPI) SetHandler(identifier string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[identifier] = handler
}

// SetResponse configures a fixed response for an identifier.
func (m *MockAPI) SetResponse(identifier string, resp MockResponse) {
	m.SetHandler(identifier, responseHandler(resp))
}

// SetSequence answers successive requests for identifier with resps in
// order; the last response repeats once the sequence is used up.
func (m *MockAPI) SetSequence(identifier string, resps ...MockResponse) {
	var (
		mu   sync.Mutex
		next int
	)
	m.SetHandler(identifier, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := resps[next]
		if next < len(resps)-1 {
			next++
		}
		mu.Unlock()
		responseHandler(resp)(w, r)
	})
}

// RequestCount returns the number of requests made to the server.
func (m *MockAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestCountFor returns the number of requests made for identifier.
func (m *MockAPI) RequestCountFor(identifier string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts[identifier]
}

// ConditionalCount returns the number of conditional requests.
func (m *MockAPI) ConditionalCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conditionalCount
}

// LastRequestHeader returns the headers of the most recent request.
func (m *MockAPI) LastRequestHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestHeader.Clone()
}

// LastRequestPath returns the URL path of the most recent request.
func (m *MockAPI) LastRequestPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestPath
}

// LastRequestQuery returns the raw query of the most recent request.
func (m *MockAPI) LastRequestQuery() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequestQuery
}

func responseHandler(resp MockResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Add delay if specified; give up early when the client goes away.
		if resp.Delay > 0 {
			select {
			case <-time.After(resp.Delay):
			case <-r.Context().Done():
				return
			}
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			_, _ = w.Write([]byte(resp.Body))
		}
	}
}

// defaultHandler answers with a small record for any identifier.
func defaultHandler(w http.ResponseWriter, identifier string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", fmt.Sprintf(`"%s-v1"`, identifier))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(RecordBody(identifier)))
}

// RecordBody is the payload the default handler serves for identifier.
func RecordBody(identifier string) string {
	return fmt.Sprintf(`{"nr": %q, "status": "active"}`, identifier)
}

// NewRecordResponse creates a standard 200 OK response for identifier.
func NewRecordResponse(identifier string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       RecordBody(identifier),
		Headers: map[string]string{
			"ETag":         `"test-etag-123"`,
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewNotFoundResponse creates a 404 Not Found response.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error": "record not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewUnauthorizedResponse creates a 401 Unauthorized response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"error": "invalid api key"}`,
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response. A zero
// retryAfter omits the Retry-After header.
func NewRateLimitResponse(retryAfter time.Duration) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter > 0 {
		resp.Headers["Retry-After"] = fmt.Sprintf("%d", int(retryAfter.Seconds()))
	}
	return resp
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewSlowResponse creates a 200 response delivered after delay.
func NewSlowResponse(identifier string, delay time.Duration) MockResponse {
	resp := NewRecordResponse(identifier)
	resp.Delay = delay
	return resp
}

// NewConditionalHandler creates a handler that responds with 304 when the
// request carries etag in If-None-Match.
func NewConditionalHandler(etag string, data string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(data))
	}
}
