// Package presence tracks which live connection each user is reachable on.
package presence

import (
	"sort"
	"sync"
)

// Registry is a bidirectional user <-> connection map. Both indexes are
// updated under one lock, so every user has at most one handle and every
// handle belongs to at most one user.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]string
	byConn map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Register maps userID to connID, overwriting any previous handle for the
// user. The stale handle is forgotten, so a later disconnect for it is a
// no-op.
func (r *Registry) Register(userID, connID string) (previous string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.byConn[connID]; ok && owner != userID {
		delete(r.byUser, owner)
	}
	if prev, ok := r.byUser[userID]; ok && prev != connID {
		delete(r.byConn, prev)
		previous, replaced = prev, true
	}

	r.byUser[userID] = connID
	r.byConn[connID] = userID
	return previous, replaced
}

func (r *Registry) Lookup(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	connID, ok := r.byUser[userID]
	return connID, ok
}

// UserOf is the reverse lookup.
func (r *Registry) UserOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userID, ok := r.byConn[connID]
	return userID, ok
}

// UnregisterByHandle removes the user currently mapped to connID. Unknown
// handles are ignored.
func (r *Registry) UnregisterByHandle(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.byConn[connID]
	if !ok {
		return "", false
	}
	delete(r.byConn, connID)
	delete(r.byUser, userID)
	return userID, true
}

// Online returns a sorted snapshot of registered users.
func (r *Registry) Online() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
