package handlers

import (
	"net/http"

	"github.com/draftgate/draftgate/internal/ratelimit"
	"github.com/draftgate/draftgate/internal/routing"
)

// PolicyView is one policy as reported by the /policies endpoint.
type PolicyView struct {
	Name          string   `json:"name"`
	MaxRequests   int      `json:"max_requests"`
	Window        string   `json:"window"`
	WindowSeconds int64    `json:"window_seconds"`
	Routes        []string `json:"routes"`
}

// PoliciesResponse is the body of the /policies endpoint.
type PoliciesResponse struct {
	Policies []PolicyView `json:"policies"`
}

// PoliciesHandler reports the configured policies and the routes using them.
type PoliciesHandler struct {
	resp PoliciesResponse
}

// NewPoliciesHandler builds the response once; both inputs are immutable.
func NewPoliciesHandler(registry *ratelimit.Registry, table *routing.Table) *PoliciesHandler {
	byPolicy := make(map[string][]string)
	for _, rt := range table.Routes() {
		if rt.Gated() {
			byPolicy[rt.Policy] = append(byPolicy[rt.Policy], rt.ID)
		}
	}

	var resp PoliciesResponse
	for _, p := range registry.Policies() {
		routes := byPolicy[p.Name]
		if routes == nil {
			routes = []string{}
		}
		resp.Policies = append(resp.Policies, PolicyView{
			Name:          p.Name,
			MaxRequests:   p.MaxRequests,
			Window:        p.Window.String(),
			WindowSeconds: int64(p.Window.Seconds()),
			Routes:        routes,
		})
	}
	return &PoliciesHandler{resp: resp}
}

// List handles GET /policies.
func (h *PoliciesHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.resp)
}
