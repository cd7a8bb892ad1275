package middleware

import (
	"net/http"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/draftgate/draftgate/internal/routing"
)

// RouteMatch returns a middleware that resolves the request's route from
// table and stores it in context. Unmatched requests get a 404.
//
// The route id is also added to the request logger set up by AccessLog and
// handed to an enclosing Metrics, so both label the request by route.
func RouteMatch(table *routing.Table) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rt, ok := table.Match(r.Method, r.URL.Path)
			if !ok {
				writeError(w, http.StatusNotFound, ErrorResponse{
					Error: "no matching route",
					Code:  "NO_ROUTE",
				})
				return
			}

			hlog.FromRequest(r).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("route", rt.ID)
			})
			if slot, ok := r.Context().Value(routeSlotKey).(*routeSlot); ok {
				slot.id = rt.ID
			}

			next.ServeHTTP(w, r.WithContext(routing.WithRoute(r.Context(), rt)))
		})
	}
}
