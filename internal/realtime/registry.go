package realtime

import "sync"

// Registry tracks live connections and resolves users to their connection
// set at delivery time. All methods are safe for concurrent use; delivery
// works on a snapshot so no lock is held during transport writes.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	users map[string]map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Conn),
		users: make(map[string]map[string]*Conn),
	}
}

// Register adds a new, not yet authenticated connection.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Authenticate binds a user identity to a connection. Re-authenticating the
// same connection replaces the previous binding without duplicating entries.
func (r *Registry) Authenticate(connID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return false
	}

	if prev := c.UserID(); prev != "" && prev != userID {
		r.unbindLocked(prev, connID)
	}
	c.setUserID(userID)

	if r.users[userID] == nil {
		r.users[userID] = make(map[string]*Conn)
	}
	r.users[userID][connID] = c
	return true
}

// Remove drops a connection from the registry and from its user's set.
func (r *Registry) Remove(connID string) *Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	delete(r.conns, connID)
	if uid := c.UserID(); uid != "" {
		r.unbindLocked(uid, connID)
	}
	return c
}

func (r *Registry) unbindLocked(userID, connID string) {
	set := r.users[userID]
	if set == nil {
		return
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

func (r *Registry) Get(connID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// ConnectionsOf returns a snapshot of the user's live connections, possibly
// empty.
func (r *Registry) ConnectionsOf(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.users[userID]
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// DeliverToUser enqueues the frame on every connection the user currently
// owns and reports how many accepted it. A slow or closed connection never
// blocks delivery to the others.
func (r *Registry) DeliverToUser(userID string, v any) int {
	delivered := 0
	for _, c := range r.ConnectionsOf(userID) {
		if err := c.enqueue(v); err == nil {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) all() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Stats reports connection and authenticated-user counts.
func (r *Registry) Stats() (connections, users int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.users)
}
