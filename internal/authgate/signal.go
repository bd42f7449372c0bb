package authgate

import (
	"sync"

	"github.com/google/uuid"
)

// Change describes a transition of the authenticated actor.
// uuid.Nil means no actor.
type Change struct {
	Previous uuid.UUID
	Current  uuid.UUID
}

// Authenticated reports whether the change is the unauthenticated-to-authenticated edge.
func (c Change) Authenticated() bool {
	return c.Previous == uuid.Nil && c.Current != uuid.Nil
}

// Signal carries the identity of the authenticated actor and notifies listeners on change.
type Signal struct {
	mu        sync.Mutex
	actor     uuid.UUID
	listeners []signalListener
	nextID    int
}

type signalListener struct {
	id int
	fn func(Change)
}

// NewSignal creates a signal with no authenticated actor.
func NewSignal() *Signal {
	return &Signal{}
}

// Current returns the authenticated actor, or uuid.Nil.
func (s *Signal) Current() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actor
}

// IsAuthenticated reports whether an actor is present.
func (s *Signal) IsAuthenticated() bool {
	return s.Current() != uuid.Nil
}

// Set records the authenticated actor. Listeners run synchronously when the value changes.
func (s *Signal) Set(actor uuid.UUID) {
	s.mu.Lock()
	if s.actor == actor {
		s.mu.Unlock()
		return
	}
	change := Change{Previous: s.actor, Current: actor}
	s.actor = actor
	listeners := make([]func(Change), len(s.listeners))
	for i, l := range s.listeners {
		listeners[i] = l.fn
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// Clear removes the authenticated actor.
func (s *Signal) Clear() {
	s.Set(uuid.Nil)
}

// Subscribe registers a change listener and returns a function that removes it.
func (s *Signal) Subscribe(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, signalListener{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}
