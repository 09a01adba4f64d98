// Package stream implements the Client Registry and Sink Dispatcher: the
// thread-safe set of active MJPEG viewers and the per-frame fan-out step the
// Capture Loop drives on each iteration.
package stream

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is an unordered collection of Clients guarded by a single mutex.
// Membership is only ever manipulated, and fan-out only ever iterates, while
// the mutex is held, per §4.3/§5.
type Registry struct {
	log *zap.Logger

	mu      sync.Mutex
	clients []*Client

	onDispatched func()
}

// NewRegistry constructs an empty Client Registry. onDispatched, if non-nil,
// is invoked once per frame that reaches Dispatch, for metrics wiring.
func NewRegistry(log *zap.Logger, onDispatched func()) *Registry {
	return &Registry{log: log, onDispatched: onDispatched}
}

// Add inserts a new client and returns the registry size after insertion.
// A transition from 0 to 1 is the Capture Loop start signal (§4.3).
func (r *Registry) Add(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, c)
	return len(r.clients)
}

// Remove drops c from the registry, closing its connection. Returns the
// registry size after removal.
func (r *Registry) Remove(c *Client) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.clients {
		if existing == c {
			r.clients = append(r.clients[:i], r.clients[i+1:]...)
			break
		}
	}
	_ = c.Close()
	return len(r.clients)
}

// Len reports the current number of registered clients.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Dispatch delivers frame to every registered client (§4.4), removing any
// client whose delivery failed, and returns the number of clients remaining
// afterward. The registry mutex is held for the full fan-out, serializing
// dispatch against concurrent Add/Remove per §5.
func (r *Registry) Dispatch(frame []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.onDispatched != nil {
		r.onDispatched()
	}

	live := r.clients[:0]
	for _, c := range r.clients {
		switch c.deliver(frame) {
		case Dead:
			r.log.Info("streaming client disconnected", zap.String("addr", c.Addr()))
			_ = c.Close()
		case AliveSkipped:
			live = append(live, c)
		case AliveSkippedNext:
			r.log.Debug("throttling slow client", zap.String("addr", c.Addr()))
			live = append(live, c)
		case Delivered:
			live = append(live, c)
		}
	}
	r.clients = live
	return len(r.clients)
}
