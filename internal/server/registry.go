// Package server coordinates client registration, message broadcast, and
// connection cleanup through the Registry type.
package server

import (
	"slices"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Registry is the live set of connected clients. Every mutation happens under
// one mutex; broadcasts copy the membership under that mutex and write to the
// recipients after releasing it.
type Registry struct {
	mu       sync.Mutex
	clients  map[uint64]*ClientConnection
	capacity int
	log      *zap.Logger
}

// NewRegistry creates a Registry that holds at most capacity clients.
func NewRegistry(capacity int, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		clients:  make(map[uint64]*ClientConnection, capacity),
		capacity: capacity,
		log:      log,
	}
}

// Register adds client. It fails with a CapacityError when the registry is
// full; the caller must close the connection rather than queue it.
func (r *Registry) Register(client *ClientConnection) error {
	r.mu.Lock()
	if len(r.clients) >= r.capacity {
		r.mu.Unlock()
		return &CapacityError{Resource: "connections", Limit: r.capacity}
	}
	r.clients[client.ID] = client
	clientCount := len(r.clients)
	r.mu.Unlock()

	r.log.Debug("client registered",
		zap.Uint64("client", client.ID),
		zap.String("addr", client.Addr),
		zap.Int("clients", clientCount))
	return nil
}

// Deregister removes the client with id. It reports whether it was present.
func (r *Registry) Deregister(id uint64) bool {
	r.mu.Lock()
	_, ok := r.clients[id]
	delete(r.clients, id)
	clientCount := len(r.clients)
	r.mu.Unlock()

	if ok {
		r.log.Debug("client unregistered", zap.Uint64("client", id), zap.Int("clients", clientCount))
	}
	return ok
}

// Len returns the number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Full reports whether Register would fail right now.
func (r *Registry) Full() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients) >= r.capacity
}

// Snapshot returns the ids of all registered clients in ascending order.
func (r *Registry) Snapshot() []uint64 {
	r.mu.Lock()
	ids := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	slices.Sort(ids)
	return ids
}

// members returns a thread-safe copy of the current clients.
func (r *Registry) members() []*ClientConnection {
	r.mu.Lock()
	defer r.mu.Unlock()

	clients := make([]*ClientConnection, 0, len(r.clients))
	for _, client := range r.clients {
		clients = append(clients, client)
	}
	return clients
}

// Broadcast writes payload to every client registered at the time of the
// call except senderID, and returns how many recipients received it. A failed
// recipient does not stop delivery to the others: its connection is closed so
// its own worker winds down, and the failure is reported in a BroadcastError.
func (r *Registry) Broadcast(senderID uint64, payload []byte) (int, error) {
	clients := r.members()

	var (
		sent      int
		attempted int
		errs      error
	)
	for _, client := range clients {
		if client.ID == senderID {
			continue
		}
		attempted++
		if _, err := client.Write(payload); err != nil {
			errs = multierr.Append(errs, &IOError{Op: "write", ClientID: client.ID, Err: err})
			r.log.Debug("broadcast write failed",
				zap.Uint64("client", client.ID),
				zap.String("addr", client.Addr),
				zap.Error(err))
			_ = client.Close()
			continue
		}
		sent++
	}

	if errs != nil {
		return sent, &BroadcastError{Attempted: attempted, Failed: attempted - sent, Err: errs}
	}
	return sent, nil
}

// CloseAll closes every registered connection without deregistering it; each
// worker deregisters itself when its read fails. It returns the number closed.
func (r *Registry) CloseAll() int {
	clients := r.members()
	for _, client := range clients {
		if err := client.Close(); err != nil && !isExpectedCloseError(err) {
			r.log.Debug("error closing client connection",
				zap.Uint64("client", client.ID),
				zap.Error(err))
		}
	}
	return len(clients)
}
