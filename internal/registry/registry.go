// Package registry tracks which room and role each live connection is bound
// to. The WebSocket layer consults it on every inbound frame.
package registry

import (
	"errors"
	"sync"
)

type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

var ErrAlreadyBound = errors.New("connection already bound to a room")

type Identity struct {
	RoomCode string
	PlayerID string // empty for the host
	Role     Role
}

type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Identity
}

func New() *Registry {
	return &Registry{conns: make(map[string]*Identity)}
}

// Add registers a connection that has not joined anything yet.
func (r *Registry) Add(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[connID]; !ok {
		r.conns[connID] = nil
	}
}

// Bind attaches a connection to a room. A connection serves one room for
// its whole life.
func (r *Registry) Bind(connID string, id Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur := r.conns[connID]; cur != nil {
		return ErrAlreadyBound
	}
	r.conns[connID] = &id
	return nil
}

func (r *Registry) Get(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id := r.conns[connID]
	if id == nil {
		return Identity{}, false
	}
	return *id, true
}

func (r *Registry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Len counts live connections, bound or not.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
