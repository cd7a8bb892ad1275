package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Window is one key's counting period. resetAt is fixed at creation; only the
// counter changes afterwards.
type Window struct {
	count   atomic.Int64
	resetAt time.Time
}

// Count returns the number of checks recorded so far, including denied ones.
func (w *Window) Count() int64 {
	return w.count.Load()
}

// ResetAt returns when the window stops counting.
func (w *Window) ResetAt() time.Time {
	return w.resetAt
}

// Expired reports whether the window is dead at now.
func (w *Window) Expired(now time.Time) bool {
	return !now.Before(w.resetAt)
}

// Entry is a key and its window as seen by Snapshot.
type Entry struct {
	Key    string
	Window *Window
}

// Store maps keys to their current Window. Keys never share a lock; a
// window is replaced with compare-and-swap so concurrent callers racing on an
// expired or missing key always agree on a single winner.
type Store struct {
	windows sync.Map // map[string]*Window
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// GetOrCreate returns the live window for key, installing a fresh one with a
// zero count if none exists or the current one has expired at now.
func (s *Store) GetOrCreate(key string, now time.Time, window time.Duration) *Window {
	for {
		v, ok := s.windows.Load(key)
		if ok {
			cur := v.(*Window)
			if !cur.Expired(now) {
				return cur
			}
			fresh := &Window{resetAt: now.Add(window)}
			if s.windows.CompareAndSwap(key, cur, fresh) {
				return fresh
			}
			// Lost the race to another replacement or a removal; look again.
			continue
		}

		fresh := &Window{resetAt: now.Add(window)}
		actual, loaded := s.windows.LoadOrStore(key, fresh)
		if !loaded {
			return fresh
		}
		if w := actual.(*Window); !w.Expired(now) {
			return w
		}
	}
}

// Increment adds one to the window's count and returns the new value.
func (s *Store) Increment(w *Window) int64 {
	return w.count.Add(1)
}

// Lookup returns the window stored for key, live or not.
func (s *Store) Lookup(key string) (*Window, bool) {
	v, ok := s.windows.Load(key)
	if !ok {
		return nil, false
	}
	return v.(*Window), true
}

// Remove deletes key unconditionally.
func (s *Store) Remove(key string) {
	s.windows.Delete(key)
}

// evict deletes key only while it still maps to w, so a window created
// concurrently with a sweep survives it.
func (s *Store) evict(key string, w *Window) bool {
	return s.windows.CompareAndDelete(key, w)
}

// Snapshot copies the current entries. It does not block writers; entries
// added during the scan may or may not be included.
func (s *Store) Snapshot() []Entry {
	var entries []Entry
	s.windows.Range(func(k, v any) bool {
		entries = append(entries, Entry{Key: k.(string), Window: v.(*Window)})
		return true
	})
	return entries
}

// Len returns the number of stored windows, expired ones included.
func (s *Store) Len() int {
	n := 0
	s.windows.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
