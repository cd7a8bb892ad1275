package ratelimit

import (
	"sync"
	"time"

	"github.com/draftgate/draftgate/pkg/logger"
)

// DefaultReapInterval is how often a Reaper sweeps unless configured otherwise.
const DefaultReapInterval = time.Minute

// WithInterval sets the Reaper's sweep interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithLogger sets the Reaper's logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// Reaper periodically evicts expired windows from a Store. It is never on the
// request path; every eviction is independent, so stopping mid-sweep leaves
// the store consistent.
type Reaper struct {
	store   *Store
	opts    options
	mu      sync.Mutex
	started bool
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewReaper creates a Reaper for store. Call Start to begin sweeping.
func NewReaper(store *Store, opts ...Option) *Reaper {
	return &Reaper{
		store: store,
		opts:  buildOptions(opts),
		done:  make(chan struct{}),
	}
}

// Start launches the sweep loop. Calling it again, or after Stop, does nothing.
func (r *Reaper) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true

	r.wg.Add(1)
	go r.loop()

	r.opts.log.Debug("reaper started", "interval", r.opts.interval.String())
}

// Stop halts further sweeps and waits for the loop to exit. It is safe to
// call more than once.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
	r.opts.log.Debug("reaper stopped")
}

// Running reports whether the sweep loop is active.
func (r *Reaper) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started && !r.stopped
}

// Sweep evicts every window that has expired and returns how many were
// removed. It works whether or not the loop is running.
func (r *Reaper) Sweep() int {
	return r.sweep(nil)
}

// sweep stops early once done is closed. A nil done never closes.
func (r *Reaper) sweep(done <-chan struct{}) int {
	start := time.Now()
	now := r.opts.clock.Now()

	evicted := 0
	for _, e := range r.store.Snapshot() {
		select {
		case <-done:
			r.report(evicted, start)
			return evicted
		default:
		}
		if e.Window.Expired(now) && r.store.evict(e.Key, e.Window) {
			evicted++
		}
	}

	r.report(evicted, start)
	return evicted
}

func (r *Reaper) report(evicted int, start time.Time) {
	remaining := r.store.Len()
	r.opts.observer.ObserveSweep(evicted, remaining, time.Since(start))
	if evicted > 0 {
		r.opts.log.Debug("reaper swept expired windows", "evicted", evicted, "remaining", remaining)
	}
}

func (r *Reaper) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep(r.done)
		}
	}
}
