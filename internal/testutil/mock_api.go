// Package testutil provides testing utilities for the extraction service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// rawResponse is a fully scripted response body for one call.
type rawResponse struct {
	status int
	body   string
}

// MockAPI is a configurable mock of the paginated records API. Each
// page can be scripted with a sequence of failure status codes; once
// the script is exhausted the page serves records normally, which lets
// tests exercise fail-N-times-then-succeed retry behavior.
type MockAPI struct {
	server *httptest.Server

	mu         sync.Mutex
	totalPages int
	pageSize   int
	token      string
	scripts    map[int][]int
	raw        map[int][]rawResponse
	calls      map[int]int

	// Tracking
	RequestCount int
	LastAuth     string
}

// NewMockAPI creates a mock API serving the given number of pages.
func NewMockAPI(totalPages, pageSize int) *MockAPI {
	mock := &MockAPI{
		totalPages: totalPages,
		pageSize:   pageSize,
		scripts:    make(map[int][]int),
		raw:        make(map[int][]rawResponse),
		calls:      make(map[int]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

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

// RequireToken makes the server reject requests whose bearer token
// does not match with 401.
func (m *MockAPI) RequireToken(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
}

// ScriptPage queues failure status codes for a page. Each call to the
// page consumes one entry; after the script runs out the page succeeds.
func (m *MockAPI) ScriptPage(page int, statuses ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[page] = append(m.scripts[page], statuses...)
}

// ScriptRawResponse queues a verbatim response (status + body) for a
// page, ahead of normal record serving. Used for malformed-body cases.
func (m *MockAPI) ScriptRawResponse(page, status int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raw[page] = append(m.raw[page], rawResponse{status: status, body: body})
}

// CallCount returns how many requests a page has received.
func (m *MockAPI) CallCount(page int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[page]
}

func (m *MockAPI) handle(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = m.pageSize
	}

	auth := r.Header.Get("Authorization")

	m.mu.Lock()
	m.RequestCount++
	m.LastAuth = auth
	m.calls[page]++

	token := m.token

	var scripted *rawResponse
	if queue := m.raw[page]; len(queue) > 0 {
		scripted = &queue[0]
		m.raw[page] = queue[1:]
	}

	status := 0
	if scripted == nil {
		if queue := m.scripts[page]; len(queue) > 0 {
			status = queue[0]
			m.scripts[page] = queue[1:]
		}
	}
	m.mu.Unlock()

	w.Header().Set("X-RateLimit-Remaining", "100")
	w.Header().Set("X-RateLimit-Reset", "60")
	w.Header().Set("Content-Type", "application/json")

	if token != "" && auth != "Bearer "+token {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "invalid token"}`)
		return
	}

	if scripted != nil {
		w.WriteHeader(scripted.status)
		fmt.Fprint(w, scripted.body)
		return
	}

	if status != 0 {
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"error": "status %d"}`, status)
		return
	}

	m.writePage(w, page, limit)
}

// writePage serves one page of generated customer records with the
// pagination metadata the real API embeds in every response.
func (m *MockAPI) writePage(w http.ResponseWriter, page, limit int) {
	records := MakeRecords(page, limit)

	payload := map[string]any{
		"data": records,
		"metadata": map[string]any{
			"total_pages":   m.totalPages,
			"page":          page,
			"per_page":      limit,
			"total_records": m.totalPages * limit,
		},
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(payload)
}

// MakeRecords generates deterministic raw customer records for a page.
// Some fields are deliberately missing or empty to exercise the
// normalizer's sentinel substitution.
func MakeRecords(page, count int) []map[string]any {
	records := make([]map[string]any, 0, count)

	for i := 0; i < count; i++ {
		id := (page-1)*count + i + 1
		record := map[string]any{
			"customer_id": fmt.Sprintf("C%05d", id),
			"uuid":        fmt.Sprintf("00000000-0000-0000-0000-%012d", id),
			"name":        fmt.Sprintf("Customer %d", id),
			"email":       fmt.Sprintf("customer%d@example.com", id),
			"age":         20 + id%60,
			"phone":       fmt.Sprintf("555%07d", id),
			"address":     fmt.Sprintf("%d Main St", id),
			"city":        "Springfield",
			"state":       "IL",
			"zip_code":    fmt.Sprintf("%05d", 60000+id%1000),
		}

		// Simulate upstream data-quality defects.
		if id%7 == 0 {
			delete(record, "email")
		}
		if id%5 == 0 {
			record["phone"] = ""
		}
		if id%11 == 0 {
			record["age"] = nil
		}

		records = append(records, record)
	}

	return records
}
