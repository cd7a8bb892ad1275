package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/hlog"

	"github.com/draftgate/draftgate/pkg/logger"
)

// AccessLog returns a middleware that writes one log line per request.
// It should run after RequestID and ClientIP so both appear in the line.
func AccessLog(log *logger.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
			hlog.FromRequest(r).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("client_ip", GetClientIP(r.Context())).
				Str("request_id", GetRequestID(r.Context())).
				Int("status", status).
				Int("size", size).
				Dur("duration", duration).
				Msg("request")
		})
		return hlog.NewHandler(log.Zerolog())(access(next))
	}
}
