package ws

import "sync"

// ConnectionManager is a thread-safe registry of active connections keyed by
// connection ID.
type ConnectionManager struct {
	mu   sync.RWMutex
	byID map[string]*Conn
}

// NewConnectionManager creates an empty ConnectionManager ready for use.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byID: make(map[string]*Conn),
	}
}

// Add registers a connection.
func (cm *ConnectionManager) Add(c *Conn) {
	cm.mu.Lock()
	cm.byID[c.id] = c
	cm.mu.Unlock()
}

// Remove removes a connection by ID. Returns true if the connection was
// found and removed, false if it was already gone.
func (cm *ConnectionManager) Remove(id string) bool {
	cm.mu.Lock()
	_, ok := cm.byID[id]
	if ok {
		delete(cm.byID, id)
	}
	cm.mu.Unlock()
	return ok
}

// Get returns the connection for the given ID, or nil if not found.
func (cm *ConnectionManager) Get(id string) *Conn {
	cm.mu.RLock()
	c := cm.byID[id]
	cm.mu.RUnlock()
	return c
}

// Count returns the current number of active connections.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	n := len(cm.byID)
	cm.mu.RUnlock()
	return n
}

// All returns a snapshot of all current connections. The returned slice is
// safe to iterate without holding the lock.
func (cm *ConnectionManager) All() []*Conn {
	cm.mu.RLock()
	conns := make([]*Conn, 0, len(cm.byID))
	for _, c := range cm.byID {
		conns = append(conns, c)
	}
	cm.mu.RUnlock()
	return conns
}
