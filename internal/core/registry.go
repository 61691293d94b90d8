package core

import (
	"sort"
	"sync"
)

// Registry maps live connections to authenticated identities.
// A connection has at most one identity; an identity may have many connections.
type Registry struct {
	mu         sync.RWMutex
	identities map[string]string              // connID -> userID
	byUser     map[string]map[string]struct{} // userID -> connIDs
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		identities: make(map[string]string),
		byUser:     make(map[string]map[string]struct{}),
	}
}

// Register binds connID to userID, replacing any previous binding.
// It returns the identity the connection was bound to before, if any.
func (r *Registry) Register(connID, userID string) (previous string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.identities[connID]
	if replaced {
		r.detach(previous, connID)
	}

	r.identities[connID] = userID
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]struct{})
	}
	r.byUser[userID][connID] = struct{}{}
	return previous, replaced
}

// Resolve returns the identity bound to connID.
func (r *Registry) Resolve(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userID, ok := r.identities[connID]
	return userID, ok
}

// Unregister removes and returns the binding of connID.
func (r *Registry) Unregister(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.identities[connID]
	if !ok {
		return "", false
	}
	delete(r.identities, connID)
	r.detach(userID, connID)
	return userID, true
}

// Connections lists the connections bound to userID.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]string, 0, len(r.byUser[userID]))
	for connID := range r.byUser[userID] {
		conns = append(conns, connID)
	}
	sort.Strings(conns)
	return conns
}

// OnlineUsers lists identities with at least one authenticated connection.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for userID := range r.byUser {
		users = append(users, userID)
	}
	sort.Strings(users)
	return users
}

// Len returns the number of authenticated connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

func (r *Registry) detach(userID, connID string) {
	conns, ok := r.byUser[userID]
	if !ok {
		return
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.byUser, userID)
	}
}
