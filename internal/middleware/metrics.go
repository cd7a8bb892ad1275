package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/draftgate/draftgate/internal/metrics"
	"github.com/draftgate/draftgate/internal/routing"
)

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// routeSlot lets RouteMatch report the matched route back to Metrics, which
// wraps it and so never sees the request RouteMatch passes on.
type routeSlot struct {
	id string
}

// Metrics returns a middleware that records Prometheus metrics. Requests are
// labelled by route id rather than raw path to keep cardinality bounded;
// requests RouteMatch rejects are labelled "unmatched".
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)
			slot := &routeSlot{id: routeLabel(r)}

			metrics.ActiveConnections.Inc()
			defer metrics.ActiveConnections.Dec()

			next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), routeSlotKey, slot)))

			metrics.RecordRequest(r.Method, slot.id, rw.statusCode, time.Since(start))
		})
	}
}

// routeLabel returns the route id already in context, or "unmatched".
func routeLabel(r *http.Request) string {
	if rt, ok := routing.RouteFrom(r.Context()); ok {
		return rt.ID
	}
	return "unmatched"
}
