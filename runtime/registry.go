package runtime

import (
	"chat-core/contract"
	"sync"
)

type Set map[string]contract.Connection

// Registry maps an actor to every live connection it holds.
// It is owned by the process and injected where needed.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]Set // map actor -> connection id -> connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]Set),
	}
}

// Register adds a connection under an already verified actor.
// Registering the same connection twice is a no-op.
func (r *Registry) Register(actorID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[actorID]; !ok {
		r.connections[actorID] = make(Set)
	}
	r.connections[actorID][conn.ID()] = conn
}

// Unregister removes one connection of the actor and leaves its other devices live.
// The actor entry is dropped with its last connection.
func (r *Registry) Unregister(actorID string, conn contract.Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.connections[actorID]
	if !ok {
		return
	}
	delete(conns, conn.ID())
	if len(conns) == 0 {
		delete(r.connections, actorID)
	}
}

// ConnectionsOf returns a snapshot; callers may push to it without holding the lock.
func (r *Registry) ConnectionsOf(actorID string) []contract.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.connections[actorID]
	if len(conns) == 0 {
		return nil
	}
	snapshot := make([]contract.Connection, 0, len(conns))
	for _, conn := range conns {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Online counts actors holding at least one connection.
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
