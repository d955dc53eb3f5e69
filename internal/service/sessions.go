package service

import (
	"sync"
)

// Session is the live mirror of one connected player: the balance is copied
// from the account store at join time and is authoritative until disconnect.
// Credits are guarded by the ledger; RoomID is guarded by the coinflip service.
type Session struct {
	ConnID   string
	Username string
	Credits  int64
	RoomID   string
}

// SessionRegistry maps connection ids to sessions. Constructed explicitly so
// tests can build isolated instances instead of sharing package state.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]*Session)}
}

// Join creates a session for connID mirroring the stored balance. A second
// join on the same connection replaces the previous session.
func (r *SessionRegistry) Join(connID, username string, credits int64) *Session {
	s := &Session{ConnID: connID, Username: username, Credits: credits}
	r.mu.Lock()
	r.sessions[connID] = s
	r.mu.Unlock()
	return s
}

func (r *SessionRegistry) Get(connID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	return s, ok
}

func (r *SessionRegistry) Remove(connID string) {
	r.mu.Lock()
	delete(r.sessions, connID)
	r.mu.Unlock()
}

func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
