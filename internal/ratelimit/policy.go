package ratelimit

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrInvalidPolicy is returned when a policy definition is unusable.
var ErrInvalidPolicy = errors.New("invalid policy")

// Names of the built-in policies.
const (
	PolicyAPI           = "api"
	PolicyAuth          = "auth"
	PolicyAI            = "ai"
	PolicyProjectCreate = "project_create"
)

// Policy is an immutable fixed-window rule: at most MaxRequests per Window.
type Policy struct {
	Name        string        `json:"name"`
	MaxRequests int           `json:"max_requests"`
	Window      time.Duration `json:"window"`
}

func (p Policy) validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPolicy)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max requests must be positive", ErrInvalidPolicy, p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be positive", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// DefaultPolicies returns the built-in policy table.
func DefaultPolicies() []Policy {
	return []Policy{
		{Name: PolicyAPI, MaxRequests: 100, Window: time.Minute},
		{Name: PolicyAuth, MaxRequests: 10, Window: 15 * time.Minute},
		{Name: PolicyAI, MaxRequests: 20, Window: time.Minute},
		{Name: PolicyProjectCreate, MaxRequests: 10, Window: time.Hour},
	}
}

// Registry is a read-only set of named policies. It is never mutated after
// construction, so it can be shared freely between goroutines.
type Registry struct {
	policies map[string]Policy
}

// NewRegistry builds a Registry from the given policies.
func NewRegistry(policies ...Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]Policy, len(policies))}
	for _, p := range policies {
		if err := p.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.policies[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate name %q", ErrInvalidPolicy, p.Name)
		}
		r.policies[p.Name] = p
	}
	return r, nil
}

// DefaultRegistry returns a Registry holding DefaultPolicies.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultPolicies()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Lookup returns the named policy.
func (r *Registry) Lookup(name string) (Policy, bool) {
	p, ok := r.policies[name]
	return p, ok
}

// MustLookup returns the named policy and panics if it does not exist.
// An unknown name means a call site is miswired.
func (r *Registry) MustLookup(name string) Policy {
	p, ok := r.policies[name]
	if !ok {
		panic(fmt.Sprintf("ratelimit: unknown policy %q", name))
	}
	return p
}

// Policies returns every policy sorted by name.
func (r *Registry) Policies() []Policy {
	out := make([]Policy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
