// Package routing maps incoming requests to the rate limit policy that guards them.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/draftgate/draftgate/internal/ratelimit"
)

var (
	// ErrInvalidRoute is returned for a route missing its id or prefix.
	ErrInvalidRoute = errors.New("invalid route")
	// ErrUnknownPolicy is returned for a route naming a policy the registry lacks.
	ErrUnknownPolicy = errors.New("unknown policy")
)

// Route selects a policy for requests whose path falls under Prefix and whose
// method is in Methods. An empty Methods matches any method; an empty Policy
// lets matching requests through without a quota.
type Route struct {
	ID      string   `yaml:"id" json:"id"`
	Prefix  string   `yaml:"prefix" json:"prefix"`
	Methods []string `yaml:"methods,omitempty" json:"methods,omitempty"`
	Policy  string   `yaml:"policy,omitempty" json:"policy,omitempty"`

	methods map[string]struct{}
}

// Gated reports whether the route is subject to a policy.
func (rt *Route) Gated() bool {
	return rt.Policy != ""
}

func (rt *Route) matches(method, path string) bool {
	if len(rt.methods) > 0 {
		if _, ok := rt.methods[strings.ToUpper(method)]; !ok {
			return false
		}
	}
	if rt.Prefix == "/" {
		return true
	}
	return path == rt.Prefix || strings.HasPrefix(path, rt.Prefix+"/")
}

// Table is an ordered list of routes; the first match wins.
type Table struct {
	routes []*Route
}

// NewTable validates routes against registry and builds a Table.
func NewTable(registry *ratelimit.Registry, routes ...Route) (*Table, error) {
	t := &Table{routes: make([]*Route, 0, len(routes))}
	seen := make(map[string]bool, len(routes))

	for i := range routes {
		rt := routes[i]
		rt.ID = strings.TrimSpace(rt.ID)
		if rt.ID == "" {
			return nil, fmt.Errorf("%w: route %d has no id", ErrInvalidRoute, i)
		}
		if seen[rt.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRoute, rt.ID)
		}
		seen[rt.ID] = true

		prefix := strings.TrimSpace(rt.Prefix)
		if !strings.HasPrefix(prefix, "/") {
			return nil, fmt.Errorf("%w: %s: prefix must start with /", ErrInvalidRoute, rt.ID)
		}
		if prefix != "/" {
			prefix = strings.TrimSuffix(prefix, "/")
		}
		rt.Prefix = prefix

		if rt.Policy != "" {
			if _, ok := registry.Lookup(rt.Policy); !ok {
				return nil, fmt.Errorf("%w: %s: %q", ErrUnknownPolicy, rt.ID, rt.Policy)
			}
		}

		rt.methods = make(map[string]struct{}, len(rt.Methods))
		for _, m := range rt.Methods {
			rt.methods[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
		}

		t.routes = append(t.routes, &rt)
	}
	return t, nil
}

// DefaultRoutes returns the route table for the screenwriting app.
func DefaultRoutes() []Route {
	return []Route{
		{ID: "signup", Prefix: "/api/auth/signup", Methods: []string{http.MethodPost}, Policy: ratelimit.PolicyAuth},
		{ID: "auth", Prefix: "/api/auth", Methods: []string{http.MethodPost}, Policy: ratelimit.PolicyAuth},
		{ID: "ai", Prefix: "/api/ai", Policy: ratelimit.PolicyAI},
		{ID: "project-create", Prefix: "/api/projects", Methods: []string{http.MethodPost}, Policy: ratelimit.PolicyProjectCreate},
		{ID: "api", Prefix: "/api", Policy: ratelimit.PolicyAPI},
		{ID: "app", Prefix: "/"},
	}
}

type file struct {
	Routes []Route `yaml:"routes"`
}

// Load reads a YAML route file. An empty path yields DefaultRoutes.
func Load(path string, registry *ratelimit.Registry) (*Table, error) {
	if path == "" {
		return NewTable(registry, DefaultRoutes()...)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	if len(f.Routes) == 0 {
		return nil, fmt.Errorf("%w: %s defines no routes", ErrInvalidRoute, path)
	}
	return NewTable(registry, f.Routes...)
}

// Match returns the first route matching method and path.
func (t *Table) Match(method, path string) (*Route, bool) {
	for _, rt := range t.routes {
		if rt.matches(method, path) {
			return rt, true
		}
	}
	return nil, false
}

// Routes returns the routes in match order.
func (t *Table) Routes() []*Route {
	return t.routes
}

type ctxKey int

const keyRoute ctxKey = 0

// WithRoute stores rt in ctx.
func WithRoute(ctx context.Context, rt *Route) context.Context {
	return context.WithValue(ctx, keyRoute, rt)
}

// RouteFrom retrieves the route stored by WithRoute.
func RouteFrom(ctx context.Context) (*Route, bool) {
	rt, ok := ctx.Value(keyRoute).(*Route)
	return rt, ok && rt != nil
}
