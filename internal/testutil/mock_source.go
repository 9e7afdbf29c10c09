// Package testutil provides testing utilities for data-flux.
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// MockSource is a configurable mock of the paginated source API. Each
// endpoint serves its records as {total, page, size, pages, items} envelopes
// for 1-based page numbers.
type MockSource struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)
	records  map[string][]map[string]any
	failures map[string]map[int]int
	delay    time.Duration
	maxSize  int

	requestCount int
	pages        map[string][]int
	inFlight     atomic.Int64
	peak         atomic.Int64
}

// NewMockSource creates a new mock source server.
func NewMockSource() *MockSource {
	mock := &MockSource{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
		records:  make(map[string][]map[string]any),
		failures: make(map[string]map[int]int),
		pages:    make(map[string][]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := mock.inFlight.Add(1)
		defer mock.inFlight.Add(-1)
		for {
			peak := mock.peak.Load()
			if current <= peak || mock.peak.CompareAndSwap(peak, current) {
				break
			}
		}

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		mock.mu.Lock()
		mock.requestCount++
		mock.pages[r.URL.Path] = append(mock.pages[r.URL.Path], page)
		handler, custom := mock.handlers[r.URL.Path]
		delay := mock.delay
		mock.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}

		if custom {
			handler(w, r)
			return
		}
		mock.pageHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSource) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockSource) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockSource) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount = 0
	m.pages = make(map[string][]int)
	m.peak.Store(0)
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSource) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetRecords sets the records served under path.
func (m *MockSource) SetRecords(path string, records []map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[path] = records
}

// FailPage makes requests for the 1-based page of path fail with status. A
// status of 0 drops the connection without a response.
func (m *MockSource) FailPage(path string, page, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures[path] == nil {
		m.failures[path] = make(map[int]int)
	}
	m.failures[path][page] = status
}

// SetDelay delays every response by d.
func (m *MockSource) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetMaxPageSize clamps the requested size the way a source with a page size
// ceiling does (0 disables clamping).
func (m *MockSource) SetMaxPageSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSize = n
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSource) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// PagesRequested returns the page numbers requested for path, in arrival order.
func (m *MockSource) PagesRequested(path string) []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]int, len(m.pages[path]))
	copy(out, m.pages[path])
	return out
}

// PeakInFlight returns the highest number of concurrently served requests.
func (m *MockSource) PeakInFlight() int {
	return int(m.peak.Load())
}

// pageHandler serves a page envelope for the request's page and size.
func (m *MockSource) pageHandler(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	records, known := m.records[r.URL.Path]
	maxSize := m.maxSize
	m.mu.RUnlock()

	if !known {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}

	page, errPage := strconv.Atoi(r.URL.Query().Get("page"))
	size, errSize := strconv.Atoi(r.URL.Query().Get("size"))
	if errPage != nil || errSize != nil || page < 1 || size < 1 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": "invalid page or size"})
		return
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}

	m.mu.RLock()
	status, failing := m.failures[r.URL.Path][page]
	m.mu.RUnlock()
	if failing {
		if status == 0 {
			panic(http.ErrAbortHandler)
		}
		writeJSON(w, status, map[string]any{"detail": "injected failure"})
		return
	}

	start := (page - 1) * size
	end := start + size
	if start > len(records) {
		start = len(records)
	}
	if end > len(records) {
		end = len(records)
	}

	pages := (len(records) + size - 1) / size
	writeJSON(w, http.StatusOK, map[string]any{
		"total": len(records),
		"page":  page,
		"size":  size,
		"pages": pages,
		"items": records[start:end],
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
