package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestMetrics_OnlyServerFailuresCountAsErrors(t *testing.T) {
	var requests, errors atomic.Int64
	mc := NewMetricsCollector(&requests, &errors)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusBadGateway} {
		h := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/agents", nil))
	}

	if got := requests.Load(); got != 3 {
		t.Fatalf("expected 3 requests counted, got %d", got)
	}
	if got := errors.Load(); got != 1 {
		t.Fatalf("expected only the 502 to count as an error, got %d", got)
	}
}

func TestRateLimit_RejectsPastBurst(t *testing.T) {
	h := RateLimit(1, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/broadcast", nil)
		req.Header.Set("X-Real-IP", "10.0.0.7")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		statuses = append(statuses, rec.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK {
		t.Fatalf("burst requests should pass, got %v", statuses)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Fatalf("third request should be limited, got %d", statuses[2])
	}
}

func TestRateLimit_ClientsAreIndependent(t *testing.T) {
	h := RateLimit(1, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for _, ip := range []string{"10.0.0.1", "10.0.0.2"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("first request from %s should pass, got %d", ip, rec.Code)
		}
	}
}

func TestRequestID_EchoedAndStored(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "agent-run-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "agent-run-42" {
		t.Fatalf("expected caller id in context, got %q", seen)
	}
	if got := rec.Header().Get(RequestIDHeader); got != "agent-run-42" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected a generated id when none supplied")
	}
}
