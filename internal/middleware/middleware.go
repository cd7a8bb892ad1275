// Package middleware contains HTTP middleware components.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

// Middleware wraps an http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// contextKey is the type for context keys used by middleware.
type contextKey string

const (
	// RequestIDKey is the context key for request ID.
	RequestIDKey contextKey = "request_id"
	// ClientIPKey is the context key for client IP.
	ClientIPKey contextKey = "client_ip"

	routeSlotKey contextKey = "route_slot"
)

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetClientIP retrieves the client IP from context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ClientIPKey).(string); ok {
		return ip
	}
	return ""
}

// Chain is an ordered list of middleware. The first entry is the outermost.
type Chain []Middleware

// New returns a Chain of the given middleware.
func New(middlewares ...Middleware) Chain {
	return append(Chain(nil), middlewares...)
}

// Then wraps h with every middleware in c. A nil h means http.DefaultServeMux.
func (c Chain) Then(h http.Handler) http.Handler {
	if h == nil {
		h = http.DefaultServeMux
	}
	for i := range c {
		h = c[len(c)-1-i](h)
	}
	return h
}

// Append returns a Chain with middlewares after those of c. c is left as is.
func (c Chain) Append(middlewares ...Middleware) Chain {
	return append(c[:len(c):len(c)], middlewares...)
}

// ErrorResponse is the JSON body written for requests the gateway rejects.
type ErrorResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, status int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
