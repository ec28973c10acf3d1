// Package stores holds the client-side read model: one store per domain, each
// owning a snapshot fetched from the gateway, a subscriber list and a refresh
// path. Stores never own canonical state; every mutation goes to the backend
// and is followed by an authoritative refetch.
package stores

import (
	"context"
	"reflect"
	"sync"
)

// State is the lifecycle of a store's snapshot.
type State int

const (
	// StateIdle means the store has never fetched.
	StateIdle State = iota
	// StateLoading means the first fetch is in flight.
	StateLoading
	// StateReady means the snapshot is populated. A failed refresh keeps the
	// store Ready with the prior snapshot, so readers see stale-but-consistent
	// data instead of a blank screen.
	StateReady
	// StateFailed means the store has no snapshot and the last fetch failed.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// store is the shared core of every domain store. The snapshot type T must be
// a value type whose copies are safe to hand to subscribers.
type store[T any] struct {
	mu        sync.Mutex
	state     State
	snapshot  T
	err       error
	listeners map[int]func(T)
	nextID    int
	pending   int
	fetch     func(ctx context.Context) (T, error)
}

func newStore[T any](fetch func(ctx context.Context) (T, error)) *store[T] {
	return &store[T]{
		listeners: make(map[int]func(T)),
		fetch:     fetch,
	}
}

// Get returns the current snapshot. Before the first successful refresh it is
// the zero value of T.
func (s *store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot
}

// State returns the store lifecycle state.
func (s *store[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the most recent fetch, nil after a success.
func (s *store[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// PendingMutations reports how many optimistic patches are awaiting their
// authoritative refresh.
func (s *store[T]) PendingMutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// Subscribe registers fn and returns an unsubscribe function. If the store is
// already Ready, fn is invoked immediately with the current snapshot; after
// that it runs on every snapshot change, at least once per change.
func (s *store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	ready := s.state == StateReady
	snap := s.snapshot
	s.mu.Unlock()

	if ready {
		fn(snap)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Refresh fetches an authoritative snapshot and notifies subscribers if it
// differs from the current one. Refreshing is idempotent: duplicate or
// reordered refreshes converge to the same snapshot. On error the prior
// snapshot is kept.
func (s *store[T]) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateFailed {
		s.state = StateLoading
	}
	fetch := s.fetch
	s.mu.Unlock()

	snap, err := fetch(ctx)

	s.mu.Lock()
	if err != nil {
		s.err = err
		if s.state != StateReady {
			s.state = StateFailed
		}
		s.mu.Unlock()
		return err
	}

	changed := s.state != StateReady || !reflect.DeepEqual(s.snapshot, snap)
	s.snapshot = snap
	s.state = StateReady
	s.err = nil
	listeners := s.listenersLocked()
	s.mu.Unlock()

	if changed {
		for _, fn := range listeners {
			fn(snap)
		}
	}
	return nil
}

// applyLocal patches the snapshot optimistically and notifies subscribers.
// The caller must follow up with settle, which refetches the authoritative
// snapshot and replaces the patch whether the mutation succeeded or not.
func (s *store[T]) applyLocal(patch func(T) T) {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return
	}
	s.pending++
	s.snapshot = patch(s.snapshot)
	snap := s.snapshot
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// settle completes an optimistic mutation with an authoritative refresh.
func (s *store[T]) settle(ctx context.Context) error {
	err := s.Refresh(ctx)
	s.mu.Lock()
	if s.pending > 0 {
		s.pending--
	}
	s.mu.Unlock()
	return err
}

// reset returns the store to Idle with a zero snapshot and no subscribers.
// Used on logout so no stale per-user data survives into the next session.
func (s *store[T]) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var zero T
	s.snapshot = zero
	s.state = StateIdle
	s.err = nil
	s.pending = 0
	s.listeners = make(map[int]func(T))
}

func (s *store[T]) listenersLocked() []func(T) {
	out := make([]func(T), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}
