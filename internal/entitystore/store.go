// Package entitystore provides a generic, per-id mutex-protected map for
// long-lived server objects (rooms, per-user client state). Each id owns its
// own exclusive lock, acquired with a bounded timeout, so unrelated ids never
// contend with one another.
package entitystore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexwave/roomplay/internal/types"
)

// AcquireTimeout is how long Acquire waits for an id's lock before failing
// with types.ErrTimeout, per spec §4.1.
const AcquireTimeout = 5 * time.Second

// entry owns one id's exclusive lock and value slot. sem is a 1-buffered
// channel acting as a cancellable, timeout-capable mutex: holding the token
// means holding the lock; Destroy closes the channel instead of returning
// the token, so every blocked and future receiver wakes immediately and
// observes destroyed rather than racing to reuse a freed value.
type entry[T any] struct {
	sem       chan struct{}
	destroyed atomic.Bool
	value     atomic.Pointer[T]
}

func newEntry[T any]() *entry[T] {
	e := &entry[T]{sem: make(chan struct{}, 1)}
	e.sem <- struct{}{}
	return e
}

// Store is a concurrent map from id to a value of type T, with per-id
// exclusive access via Acquire/Usage.
type Store[K comparable, T any] struct {
	mu      sync.Mutex
	entries map[K]*entry[T]
}

// New creates an empty Store.
func New[K comparable, T any]() *Store[K, T] {
	return &Store[K, T]{entries: make(map[K]*entry[T])}
}

// Usage is a scoped handle on one id's exclusive lock. The zero value is not
// usable; obtain one from Acquire and call Release exactly once.
type Usage[K comparable, T any] struct {
	store *Store[K, T]
	id    K
	entry *entry[T]
}

// ID returns the id this usage was acquired for.
func (u *Usage[K, T]) ID() K { return u.id }

// Value returns the current value for this id. Safe to call repeatedly
// while the usage is held.
func (u *Usage[K, T]) Value() T {
	p := u.entry.value.Load()
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

// SetValue replaces the value for this id.
func (u *Usage[K, T]) SetValue(v T) {
	u.entry.value.Store(&v)
}

// Release gives up the exclusive lock. A no-op if the entry was destroyed
// while this usage held it (Destroy already closed the semaphore channel).
func (u *Usage[K, T]) Release() {
	if u.entry.destroyed.Load() {
		return
	}
	u.entry.sem <- struct{}{}
}

// Acquire returns an exclusive handle for id. If the id is untracked and
// createIfMissing is false, it fails with types.ErrNotTracked. Lock
// acquisition times out after AcquireTimeout and fails with types.ErrTimeout.
func (s *Store[K, T]) Acquire(ctx context.Context, id K, createIfMissing bool) (*Usage[K, T], error) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		if !createIfMissing {
			s.mu.Unlock()
			return nil, types.ErrNotTracked
		}
		e = newEntry[T]()
		s.entries[id] = e
	}
	s.mu.Unlock()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case <-e.sem:
		if e.destroyed.Load() {
			return nil, types.ErrNotTracked
		}
		return &Usage[K, T]{store: s, id: id, entry: e}, nil
	case <-timer.C:
		return nil, types.ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Destroy acquires id's lock, marks it destroyed, and removes it from the
// map. Any usage currently blocked on Acquire for this id wakes immediately
// and observes types.ErrNotTracked. Destroying an untracked id fails with
// types.ErrNotTracked.
func (s *Store[K, T]) Destroy(ctx context.Context, id K) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return types.ErrNotTracked
	}
	delete(s.entries, id)
	s.mu.Unlock()

	timer := time.NewTimer(AcquireTimeout)
	defer timer.Stop()

	select {
	case <-e.sem:
		e.destroyed.Store(true)
		close(e.sem)
		return nil
	case <-timer.C:
		return types.ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot is a point-in-time (id, value) pair returned by Store.Snapshot.
type Snapshot[K comparable, T any] struct {
	ID    K
	Value T
}

// Snapshot returns a read-only copy of every tracked (id, value) pair. It
// never blocks on a per-id lock, so it may observe a value mid-mutation;
// callers must tolerate stale reads.
func (s *Store[K, T]) Snapshot() []Snapshot[K, T] {
	s.mu.Lock()
	ids := make([]K, 0, len(s.entries))
	entries := make([]*entry[T], 0, len(s.entries))
	for id, e := range s.entries {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	s.mu.Unlock()

	out := make([]Snapshot[K, T], 0, len(ids))
	for i, e := range entries {
		if e.destroyed.Load() {
			continue
		}
		p := e.value.Load()
		if p == nil {
			continue
		}
		out = append(out, Snapshot[K, T]{ID: ids[i], Value: *p})
	}
	return out
}

// Len returns the number of currently tracked ids.
func (s *Store[K, T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
