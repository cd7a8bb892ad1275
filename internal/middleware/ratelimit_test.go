package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftgate/draftgate/internal/clock"
	"github.com/draftgate/draftgate/internal/ratelimit"
	"github.com/draftgate/draftgate/internal/routing"
)

// mockLimiter implements ratelimit.Limiter for testing.
type mockLimiter struct {
	mu     sync.Mutex
	result *ratelimit.Result
	err    error
	calls  []string
}

func (m *mockLimiter) Allow(ctx context.Context, identifier string) (*ratelimit.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, identifier)
	return m.result, m.err
}

func (m *mockLimiter) Reset(ctx context.Context, identifier string) error {
	return nil
}

// mockSource hands out one mockLimiter and remembers which policies were asked for.
type mockSource struct {
	limiter  *mockLimiter
	policies []string
}

func (s *mockSource) Limiter(policy string) ratelimit.Limiter {
	s.policies = append(s.policies, policy)
	return s.limiter
}

func gatedRequest(method, path, remoteAddr string, rt *routing.Route) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	if rt != nil {
		req = req.WithContext(routing.WithRoute(req.Context(), rt))
	}
	return req
}

var authRoute = &routing.Route{ID: "signup", Prefix: "/api/auth/signup", Policy: ratelimit.PolicyAuth}

func TestRateLimit(t *testing.T) {
	t.Run("allows request when under limit", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{
			result: &ratelimit.Result{Allowed: true, Remaining: 9, Limit: 10},
		}}
		handlerCalled := false

		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
			w.WriteHeader(http.StatusOK)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodPost, "/api/auth/signup", "192.168.1.1:12345", authRoute))

		assert.True(t, handlerCalled)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "10", rec.Header().Get(HeaderRateLimitLimit))
		assert.Equal(t, "9", rec.Header().Get(HeaderRateLimitRemaining))
		assert.Empty(t, rec.Header().Get(HeaderRetryAfter))
		assert.Equal(t, []string{ratelimit.PolicyAuth}, src.policies)
	})

	t.Run("returns 429 when over limit", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{
			result: &ratelimit.Result{Allowed: false, RetryAfter: 30 * time.Second, Limit: 10},
		}}
		handlerCalled := false

		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodPost, "/api/auth/signup", "192.168.1.1:12345", authRoute))

		assert.False(t, handlerCalled, "handler should not be called when rate limited")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get(HeaderRetryAfter))
		assert.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "rate limit exceeded", resp.Error)
		assert.Equal(t, "RATE_LIMIT_EXCEEDED", resp.Code)
		assert.Equal(t, 30, resp.RetryAfter)
	})

	t.Run("builds identifier from route and client IP", func(t *testing.T) {
		lim := &mockLimiter{result: &ratelimit.Result{Allowed: true, Limit: 10}}
		chain := New(
			ClientIP(true, nil),
			RateLimit(&mockSource{limiter: lim}, nil),
		)
		handler := chain.Then(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		req := gatedRequest(http.MethodPost, "/api/auth/signup", "10.0.0.1:80", authRoute)
		req.Header.Set(HeaderXForwardedFor, "203.0.113.5")
		handler.ServeHTTP(httptest.NewRecorder(), req)

		require.Len(t, lim.calls, 1)
		assert.Equal(t, "signup:203.0.113.5", lim.calls[0])
	})

	t.Run("falls back to RemoteAddr without ClientIP middleware", func(t *testing.T) {
		lim := &mockLimiter{result: &ratelimit.Result{Allowed: true, Limit: 10}}
		handler := RateLimit(&mockSource{limiter: lim}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		handler.ServeHTTP(httptest.NewRecorder(), gatedRequest(http.MethodPost, "/x", "192.168.1.1", authRoute))

		require.Len(t, lim.calls, 1)
		assert.Equal(t, "signup:192.168.1.1", lim.calls[0])
	})

	t.Run("passes through ungated routes", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{}}
		handlerCalled := false
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		app := &routing.Route{ID: "app", Prefix: "/"}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodGet, "/projects", "192.168.1.1:1", app))

		assert.True(t, handlerCalled)
		assert.Empty(t, src.policies)
		assert.Empty(t, rec.Header().Get(HeaderRateLimitLimit))
	})

	t.Run("passes through when no route is in context", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{}}
		handlerCalled := false
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		handler.ServeHTTP(httptest.NewRecorder(), gatedRequest(http.MethodGet, "/", "192.168.1.1:1", nil))

		assert.True(t, handlerCalled)
		assert.Empty(t, src.policies)
	})

	t.Run("fails closed on limiter error", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{err: context.Canceled}}
		handlerCalled := false
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handlerCalled = true
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodPost, "/api/auth/signup", "192.168.1.1:1", authRoute))

		assert.False(t, handlerCalled)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("sets reset header from window reset time", func(t *testing.T) {
		resetAt := time.Now().Add(45 * time.Second)
		src := &mockSource{limiter: &mockLimiter{
			result: &ratelimit.Result{
				Allowed:    false,
				RetryAfter: 45 * time.Second,
				ResetAfter: 45 * time.Second,
				ResetAt:    resetAt,
				Limit:      100,
			},
		}}
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodGet, "/api", "192.168.1.1:1", authRoute))

		assert.Equal(t, "45", rec.Header().Get(HeaderRetryAfter))
		assert.Equal(t, "100", rec.Header().Get(HeaderRateLimitLimit))
		reset, err := strconv.ParseInt(rec.Header().Get(HeaderRateLimitReset), 10, 64)
		require.NoError(t, err)
		assert.Equal(t, resetAt.Unix(), reset)
	})

	t.Run("omits reset header without a reset time", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{
			result: &ratelimit.Result{Allowed: true, Remaining: 9, Limit: 10},
		}}
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodGet, "/api", "192.168.1.1:1", authRoute))

		assert.Empty(t, rec.Header().Get(HeaderRateLimitReset))
	})

	t.Run("rounds sub-second retry up to 1 second", func(t *testing.T) {
		src := &mockSource{limiter: &mockLimiter{
			result: &ratelimit.Result{Allowed: false, RetryAfter: 500 * time.Millisecond, Limit: 10},
		}}
		handler := RateLimit(src, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodGet, "/api", "192.168.1.1:1", authRoute))

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "1", rec.Header().Get(HeaderRetryAfter))
	})
}

func TestRateLimit_WithGate(t *testing.T) {
	reg, err := ratelimit.NewRegistry(ratelimit.Policy{Name: ratelimit.PolicyAuth, MaxRequests: 2, Window: time.Minute})
	require.NoError(t, err)
	clk := clock.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	gate := ratelimit.NewGate(reg, ratelimit.WithClock(clk))

	login := &routing.Route{ID: "login", Prefix: "/api/auth/login", Policy: ratelimit.PolicyAuth}
	handler := RateLimit(gate, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(rt *routing.Route, addr string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, gatedRequest(http.MethodPost, rt.Prefix, addr, rt))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, serve(authRoute, "203.0.113.5:1").Code)
	assert.Equal(t, http.StatusNoContent, serve(authRoute, "203.0.113.5:2").Code)

	clk.Advance(20 * time.Second)
	denied := serve(authRoute, "203.0.113.5:3")
	assert.Equal(t, http.StatusTooManyRequests, denied.Code)
	assert.Equal(t, "40", denied.Header().Get(HeaderRetryAfter))

	assert.Equal(t, http.StatusNoContent, serve(login, "203.0.113.5:4").Code, "routes have separate quotas")
	assert.Equal(t, http.StatusNoContent, serve(authRoute, "203.0.113.6:1").Code, "clients have separate quotas")
}
