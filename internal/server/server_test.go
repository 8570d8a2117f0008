package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jpalmerr/labwatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededStore(t *testing.T, n int) *store.MemoryStore {
	t.Helper()
	mem := store.NewMemoryStore(0)
	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		rec := &store.Record{
			BaseURL:           "https://gitlab.example.com",
			CreatedAt:         base.Add(time.Duration(i) * time.Minute),
			HealthCheckPassed: i%2 == 0,
			InstanceVersion:   "16.6.1-ee",
			Responses:         store.Responses{HealthCheckResponse: "GitLab OK"},
		}
		if err := mem.Insert(context.Background(), rec); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	return mem
}

func getPolls(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, []Poll) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var polls []Poll
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&polls); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
	return rec, polls
}

func TestHandlePolls_DefaultLimit(t *testing.T) {
	srv := NewServer(seededStore(t, 30), ":0", nil, testLogger())

	rec, polls := getPolls(t, srv.Handler(), "/api/polls")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if len(polls) != defaultLimit {
		t.Fatalf("got %d polls, want %d", len(polls), defaultLimit)
	}
	if polls[0].ID != 30 || polls[1].ID != 29 {
		t.Errorf("first ids = %d, %d, want newest first (30, 29)", polls[0].ID, polls[1].ID)
	}
	if polls[0].Responses != nil {
		t.Error("responses should not be included by default")
	}
}

func TestHandlePolls_Limit(t *testing.T) {
	srv := NewServer(seededStore(t, 5), ":0", nil, testLogger())

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantCount  int
	}{
		{name: "explicit", target: "/api/polls?limit=2", wantStatus: http.StatusOK, wantCount: 2},
		{name: "more than stored", target: "/api/polls?limit=50", wantStatus: http.StatusOK, wantCount: 5},
		{name: "above max is capped", target: "/api/polls?limit=100000", wantStatus: http.StatusOK, wantCount: 5},
		{name: "zero", target: "/api/polls?limit=0", wantStatus: http.StatusBadRequest},
		{name: "not a number", target: "/api/polls?limit=abc", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, polls := getPolls(t, srv.Handler(), tt.target)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && len(polls) != tt.wantCount {
				t.Errorf("got %d polls, want %d", len(polls), tt.wantCount)
			}
		})
	}
}

func TestHandlePolls_WithResponses(t *testing.T) {
	srv := NewServer(seededStore(t, 2), ":0", nil, testLogger())

	_, polls := getPolls(t, srv.Handler(), "/api/polls?responses=true")
	if len(polls) != 2 {
		t.Fatalf("got %d polls, want 2", len(polls))
	}
	for _, p := range polls {
		if p.Responses == nil || p.Responses.HealthCheckResponse != "GitLab OK" {
			t.Errorf("poll %d responses = %+v, want health body", p.ID, p.Responses)
		}
	}
}

func TestHandlePolls_EmptyStoreReturnsArray(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(0), ":0", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestHandlePolls_MethodNotAllowed(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(0), ":0", nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/polls", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

type brokenReader struct{ store.Reader }

func (brokenReader) Recent(context.Context, int) ([]store.Record, error) {
	return nil, errors.New("database is locked")
}

func TestHandlePolls_StoreError(t *testing.T) {
	srv := NewServer(brokenReader{}, ":0", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/polls", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "locked") {
		t.Error("internal error detail leaked to client")
	}
}

func TestHandleHealthz(t *testing.T) {
	srv := NewServer(store.NewMemoryStore(0), ":0", nil, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q, want 200 ok", rec.Code, rec.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("labwatch_cycles_total 1\n"))
	})

	withMetrics := NewServer(store.NewMemoryStore(0), ":0", metrics, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	withMetrics.Handler().ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "labwatch_cycles_total") {
		t.Errorf("/metrics body = %q", rec.Body.String())
	}

	without := NewServer(store.NewMemoryStore(0), ":0", nil, testLogger())
	rec = httptest.NewRecorder()
	without.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("/metrics without handler status = %d, want 404", rec.Code)
	}
}

func TestServer_StartAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(seededStore(t, 1), "127.0.0.1:0", nil, testLogger())

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	cancel()

	// the listener closes shortly after cancellation
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + srv.Addr() + "/healthz")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("server still accepting connections after shutdown")
}

func TestServer_StartBindFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := NewServer(store.NewMemoryStore(0), "127.0.0.1:0", nil, testLogger())
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	second := NewServer(store.NewMemoryStore(0), first.Addr(), nil, testLogger())
	if err := second.Start(ctx); err == nil {
		t.Error("Start() on a bound address should fail")
	}
}
