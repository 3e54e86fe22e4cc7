// Package dispatch manages live websocket sessions for drivers and
// passengers. It only moves bytes; what gets pushed is decided by the
// feed consumers in the http layer.
package dispatch

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Session is one connected client socket. gorilla/websocket permits a
// single concurrent writer, so Send serializes.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) Send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Registry holds live sessions keyed by client id. A reconnect replaces
// the previous session and closes its socket.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry { return &Registry{sessions: make(map[string]*Session)} }

func (r *Registry) Add(id string, conn *websocket.Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	if old, ok := r.sessions[id]; ok {
		_ = old.Close()
	}
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

// Remove drops the session for id, but only if it is still the given
// one; a newer session from a reconnect is left alone.
func (r *Registry) Remove(id string, s *Session) {
	r.mu.Lock()
	if cur, ok := r.sessions[id]; ok && cur == s {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
}

func (r *Registry) Push(id string, v any) error {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(v)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

var ErrNoSession = &NoSessionError{}

type NoSessionError struct{}

func (n *NoSessionError) Error() string { return "no active session" }
