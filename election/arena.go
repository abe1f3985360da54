package election

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// scope is the exclusive access scope of a single election. The semaphore is a
// channel so acquiring it can be abandoned when the context is done.
type scope struct {
	sem      chan struct{}
	waiters  int
	inFlight atomic.Int64
}

// arena indexes the election scopes. Scopes of unrelated elections never
// contend with each other.
type arena struct {
	mu     sync.Mutex
	scopes map[uuid.UUID]*scope
}

func newArena() *arena {
	return &arena{scopes: make(map[uuid.UUID]*scope)}
}

// get returns the scope of the election, creating it if needed, and registers
// the caller as a user of it.
func (a *arena) get(id uuid.UUID) *scope {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.scopes[id]
	if !ok {
		s = &scope{sem: make(chan struct{}, 1)}
		a.scopes[id] = s
	}
	s.waiters++
	return s
}

// put releases a reference obtained with get. Idle scopes without in flight
// submissions are dropped from the index.
func (a *arena) put(id uuid.UUID, s *scope) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s.waiters--
	if s.waiters == 0 && s.inFlight.Load() == 0 {
		delete(a.scopes, id)
	}
}

// guard runs fn with exclusive access to the election.
func (a *arena) guard(ctx context.Context, id uuid.UUID, fn func(*scope) error) error {
	s := a.get(id)
	defer a.put(id, s)
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()
	return fn(s)
}

// add adjusts the in flight counter of the election and returns the new value.
func (a *arena) add(id uuid.UUID, delta int64) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.scopes[id]
	if !ok {
		s = &scope{sem: make(chan struct{}, 1)}
		a.scopes[id] = s
	}
	n := s.inFlight.Add(delta)
	if n <= 0 {
		s.inFlight.Store(0)
		if s.waiters == 0 {
			delete(a.scopes, id)
		}
		return 0
	}
	return n
}

// inFlight returns the number of in flight submissions of the election.
func (a *arena) inFlight(id uuid.UUID) int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.scopes[id]; ok {
		return s.inFlight.Load()
	}
	return 0
}
