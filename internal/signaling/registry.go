package signaling

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps live connection ids to their clients. It is the only place a
// connection id becomes addressable and owns no room or negotiation logic.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	newID   func() string
}

func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[string]*Client),
		newID:   uuid.NewString,
	}
}

// Register allocates a fresh id for c and makes it addressable.
func (r *Registry) Register(c *Client) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for r.clients[id] != nil {
		id = r.newID()
	}
	c.ID = id
	r.clients[id] = c
	return id
}

// Unregister removes id. Unknown ids are a no-op, reported by ok=false.
func (r *Registry) Unregister(id string) (c *Client, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok = r.clients[id]
	if ok {
		delete(r.clients, id)
	}
	return c, ok
}

func (r *Registry) Lookup(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clients returns a snapshot of the live clients.
func (r *Registry) Clients() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}
