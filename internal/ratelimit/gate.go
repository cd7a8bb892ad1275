package ratelimit

import (
	"math"
	"time"

	"github.com/draftgate/draftgate/internal/clock"
	"github.com/draftgate/draftgate/pkg/logger"
)

// Verdict is the outcome of one admission check.
type Verdict struct {
	Admitted  bool      `json:"admitted"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	Limit     int       `json:"limit"`
	Policy    string    `json:"policy"`
}

// RetryAfter returns how long until the verdict's window resets.
func (v Verdict) RetryAfter(now time.Time) time.Duration {
	d := v.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, and never
// less than one.
func (v Verdict) RetryAfterSeconds(now time.Time) int {
	secs := int(math.Ceil(v.RetryAfter(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Observer receives admission and eviction events, typically for metrics.
type Observer interface {
	ObserveVerdict(policy string, admitted bool)
	ObserveSweep(evicted int, remaining int, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveVerdict(string, bool) {}
func (nopObserver) ObserveSweep(int, int, time.Duration) {}

// Option configures a Gate or a Reaper.
type Option func(*options)

type options struct {
	clock    clock.Clock
	observer Observer
	interval time.Duration
	log      *logger.Logger
}

// WithClock sets the time source.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithObserver sets the event observer.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func buildOptions(opts []Option) options {
	o := options{
		clock:    clock.Real{},
		observer: nopObserver{},
		interval: DefaultReapInterval,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Gate answers admission checks against a Registry of policies. It owns its
// Store; pair it with a Reaper to bound memory.
type Gate struct {
	registry *Registry
	store    *Store
	clock    clock.Clock
	observer Observer
}

// NewGate creates a Gate with an empty Store.
func NewGate(registry *Registry, opts ...Option) *Gate {
	o := buildOptions(opts)
	return &Gate{
		registry: registry,
		store:    NewStore(),
		clock:    o.clock,
		observer: o.observer,
	}
}

// Check records one request for identifier under the named policy and
// reports whether it is admitted. Denied requests still count, so a flood
// keeps the identifier pinned at zero remaining until the window resets.
// It panics if the policy does not exist.
func (g *Gate) Check(policyName, identifier string) Verdict {
	p := g.registry.MustLookup(policyName)
	now := g.clock.Now()

	w := g.store.GetOrCreate(storageKey(policyName, identifier), now, p.Window)
	n := g.store.Increment(w)

	v := Verdict{
		Admitted: n <= int64(p.MaxRequests),
		ResetAt:  w.ResetAt(),
		Limit:    p.MaxRequests,
		Policy:   p.Name,
	}
	if v.Admitted {
		v.Remaining = p.MaxRequests - int(n)
	}
	g.observer.ObserveVerdict(p.Name, v.Admitted)
	return v
}

// Reset forgets identifier's window under the named policy.
func (g *Gate) Reset(policyName, identifier string) {
	g.registry.MustLookup(policyName)
	g.store.Remove(storageKey(policyName, identifier))
}

// Limiter returns a Limiter bound to the named policy. It panics if the
// policy does not exist.
func (g *Gate) Limiter(policyName string) Limiter {
	p := g.registry.MustLookup(policyName)
	return &policyLimiter{gate: g, policy: p.Name}
}

// Now returns the gate clock's current time.
func (g *Gate) Now() time.Time {
	return g.clock.Now()
}

// Registry returns the gate's policies.
func (g *Gate) Registry() *Registry {
	return g.registry
}

// Store returns the gate's window store.
func (g *Gate) Store() *Store {
	return g.store
}

func storageKey(policyName, identifier string) string {
	return policyName + ":" + identifier
}
