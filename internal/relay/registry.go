package relay

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/Revaiowo/streamRTC/internal/protocol"
)

// Endpoint is the relay's view of a live client connection.
type Endpoint interface {
	// Deliver queues msg without blocking. It reports false when the
	// message could not be queued; the endpoint is then shutting down.
	Deliver(msg *protocol.Message) bool

	// Close starts shutting the endpoint down. It must be safe to call
	// more than once and from any goroutine.
	Close()
}

type connection struct {
	endpoint Endpoint
	rooms    []string // join order
}

// Registry tracks live connections and the rooms each one has joined.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register assigns a fresh id to ep.
func (r *Registry) Register(ep Endpoint) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.conns[id] = &connection{endpoint: ep}
	r.mu.Unlock()

	return id
}

// Unregister forgets id and returns the rooms it had joined. Only the first
// call for an id reports ok; later calls are no-ops.
func (r *Registry) Unregister(id string) (rooms []string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	delete(r.conns, id)
	return c.rooms, true
}

func (r *Registry) Endpoint(id string) (Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return c.endpoint, true
}

// AddRoom records that id joined room. It reports false if id is no longer
// registered.
func (r *Registry) AddRoom(id, room string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	if !slices.Contains(c.rooms, room) {
		c.rooms = append(c.rooms, room)
	}
	return true
}

func (r *Registry) RemoveRoom(id, room string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.conns[id]; ok {
		c.rooms = slices.DeleteFunc(c.rooms, func(joined string) bool { return joined == room })
	}
}

func (r *Registry) Rooms(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.conns[id]; ok {
		return slices.Clone(c.rooms)
	}
	return nil
}

// SharesRoom reports whether a and b are both registered and have at least
// one room in common.
func (r *Registry) SharesRoom(a, b string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ca, ok := r.conns[a]
	if !ok {
		return false
	}
	cb, ok := r.conns[b]
	if !ok {
		return false
	}
	for _, room := range ca.rooms {
		if slices.Contains(cb.rooms, room) {
			return true
		}
	}
	return false
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Endpoints returns a snapshot of every registered endpoint.
func (r *Registry) Endpoints() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := make([]Endpoint, 0, len(r.conns))
	for _, c := range r.conns {
		eps = append(eps, c.endpoint)
	}
	return eps
}
