package middleware

import (
	"net/http"
	"sync/atomic"
)

// MetricsCollector tallies traffic for the /metrics snapshot. Only
// server-side failures count toward errorCount: 4xx rejections (bad
// claims, unknown agents, auth misses) are normal traffic for a
// service fronting agent tooling, while 5xx — including 502s from a
// model backend — is what an operator needs to see climbing.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
}

// NewMetricsCollector wires the collector to counters owned by the app,
// so the /metrics handler reads them without going through middleware.
func NewMetricsCollector(requestCount, errorCount *atomic.Int64) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
	}
}

// Middleware counts every request and every 5xx response.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= http.StatusInternalServerError {
			mc.errorCount.Add(1)
		}
	})
}
