// internal/auth/session.go
package auth

import (
	"sync"

	"github.com/google/uuid"
)

// Session is an in-memory authenticated identity, scoped to one lobby process
// and ultimately to one client connection. It references the user by id and
// name only; it never pins the user record.
type Session struct {
	ID     string
	UserID string
	Name   string
}

// Sessions holds the live session table for a single lobby. It is constructed
// at boot and torn down with the lobby; nothing outside the owning lobby
// shares it. One-session-per-user is enforced by the store's online flag, not
// here.
type Sessions struct {
	mu   sync.Mutex
	byID map[string]Session
}

// NewSessions returns an empty session table.
func NewSessions() *Sessions {
	return &Sessions{byID: make(map[string]Session)}
}

// Create mints a fresh opaque session id for the user and registers it.
func (s *Sessions) Create(userID, name string) Session {
	sess := Session{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sess.ID] = sess
	return sess
}

// Get looks up a session by id.
func (s *Sessions) Get(id string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	return sess, ok
}

// Delete removes a session. Removing an unknown id is a no-op.
func (s *Sessions) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}
