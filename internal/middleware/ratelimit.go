package middleware

import (
	"net/http"
	"strconv"

	"github.com/draftgate/draftgate/internal/ratelimit"
	"github.com/draftgate/draftgate/internal/routing"
	"github.com/draftgate/draftgate/pkg/logger"
)

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// LimiterSource resolves the limiter for a policy name. *ratelimit.Gate
// satisfies it.
type LimiterSource interface {
	Limiter(policy string) ratelimit.Limiter
}

// RateLimit returns a middleware that checks every gated request against the
// policy of its matched route. It must run after RouteMatch and ClientIP.
//
// The identifier is "<route id>:<client ip>", so each route has its own quota
// per client even when two routes share a policy.
func RateLimit(src LimiterSource, log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Nop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rt, ok := routing.RouteFrom(r.Context())
			if !ok || !rt.Gated() {
				next.ServeHTTP(w, r)
				return
			}

			lim := src.Limiter(rt.Policy)
			identifier := rt.ID + ":" + clientIPFor(r)

			result, err := lim.Allow(r.Context(), identifier)
			if err != nil {
				log.Error("rate limit check failed",
					"error", err.Error(),
					"route", rt.ID,
					"request_id", GetRequestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, ErrorResponse{
					Error: "rate limiter error",
					Code:  "RATE_LIMITER_ERROR",
				})
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				log.Debug("request rate limited",
					"route", rt.ID,
					"policy", rt.Policy,
					"identifier", identifier,
					"retry_after", result.RetryAfterSeconds(),
				)
				writeError(w, http.StatusTooManyRequests, ErrorResponse{
					Error:      "rate limit exceeded",
					Code:       "RATE_LIMIT_EXCEEDED",
					RetryAfter: result.RetryAfterSeconds(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// setRateLimitHeaders sets the rate limit headers on the response.
func setRateLimitHeaders(w http.ResponseWriter, result *ratelimit.Result) {
	w.Header().Set(HeaderRateLimitLimit, strconv.Itoa(result.Limit))
	w.Header().Set(HeaderRateLimitRemaining, strconv.Itoa(result.Remaining))

	if !result.ResetAt.IsZero() {
		w.Header().Set(HeaderRateLimitReset, strconv.FormatInt(result.ResetAt.Unix(), 10))
	}

	if !result.Allowed {
		w.Header().Set(HeaderRetryAfter, strconv.Itoa(result.RetryAfterSeconds()))
	}
}
