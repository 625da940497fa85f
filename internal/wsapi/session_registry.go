package wsapi

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Conn is the transport's view of one live connection.
type Conn interface {
	// ID is unique among live connections.
	ID() string
	RemoteAddr() string
	// Send queues one text frame.
	Send(data []byte) error
	// Close ends the connection with a going-away close frame.
	Close(reason string) error
}

// SessionRegistry owns one APISession per live connection.
//
// Thread Safety: connect and disconnect take the write lock and exclude
// each other; lookups take the read lock.
type SessionRegistry struct {
	mu         sync.RWMutex
	sessions   map[string]*APISession
	newLimiter func() *rate.Limiter
}

// NewSessionRegistry creates an empty registry. newLimiter, if non-nil,
// builds each session's request rate limiter.
func NewSessionRegistry(newLimiter func() *rate.Limiter) *SessionRegistry {
	return &SessionRegistry{
		sessions:   make(map[string]*APISession),
		newLimiter: newLimiter,
	}
}

// OnConnect creates and registers an unauthenticated session for conn.
// It panics if conn is already registered.
func (r *SessionRegistry) OnConnect(conn Conn) *APISession {
	s := newAPISession(conn)
	if r.newLimiter != nil {
		s.limiter = r.newLimiter()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[conn.ID()]; exists {
		panic(fmt.Sprintf("wsapi: connection %s opened twice", conn.ID()))
	}
	r.sessions[conn.ID()] = s
	return s
}

// OnDisconnect removes and returns the session of conn, or nil if none.
func (r *SessionRegistry) OnDisconnect(conn Conn) *APISession {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[conn.ID()]
	delete(r.sessions, conn.ID())
	return s
}

// Get returns the session of conn. The transport guarantees open precedes
// message precedes close, so an unknown connection is a programming error
// and panics.
func (r *SessionRegistry) Get(conn Conn) *APISession {
	r.mu.RLock()
	s, ok := r.sessions[conn.ID()]
	r.mu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("wsapi: no session for connection %s", conn.ID()))
	}
	return s
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live sessions at the time of the call.
func (r *SessionRegistry) Snapshot() []*APISession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*APISession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
