// Package session tracks what the worker believes about the page's authenticated session.
package session

import (
	"sync"
	"time"
)

// Session is a snapshot of the state. The zero value is unauthenticated.
type Session struct {
	Authenticated bool
	ExpiresAt     time.Time
}

// Expired reports whether an authenticated session has passed its expiry.
// An unauthenticated session never expires.
func (s Session) Expired(now time.Time) bool {
	return s.Authenticated && now.After(s.ExpiresAt)
}

// State is a single-writer cell holding the current Session.
// It is only a heuristic signal and never blocks requests.
type State struct {
	mu      sync.RWMutex
	current Session
	// bumped on every logout
	generation uint64
}

func New() *State {
	return &State{}
}

// Login moves to Authenticated with the given expiry.
func (s *State) Login(expiresAt time.Time) {
	s.mu.Lock()
	s.current = Session{Authenticated: true, ExpiresAt: expiresAt}
	s.mu.Unlock()
}

// Logout moves to Unauthenticated and starts a new generation.
// It reports whether the state was authenticated before.
func (s *State) Logout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.current.Authenticated
	s.current = Session{}
	s.generation++
	return was
}

// Generation identifies the span between two logouts. Work started under one
// generation must not write cached responses once it has changed.
func (s *State) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *State) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *State) Expired(now time.Time) bool {
	return s.Snapshot().Expired(now)
}
