// Package snapshot implements the Snapshot Rendezvous (C5): the handoff
// between an HTTP worker asking for a full-resolution frame and the Capture
// Loop that alone is allowed to touch the device.
package snapshot

import (
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrBusy is returned when a snapshot is requested while another is Pending.
var ErrBusy = errors.New("snapshot: busy")

// ErrTimeout is returned when the Capture Loop does not signal done within Wait.
var ErrTimeout = errors.New("snapshot: timeout")

// Wait bounds how long Capture blocks for the Capture Loop to service a
// Pending request, per §5's 30-second rendezvous deadline.
const Wait = 30 * time.Second

// Synchronous performs the full snapshot protocol directly on the calling
// goroutine, for use when the Capture Loop is not running. Implemented by the
// capture package to avoid an import cycle.
type Synchronous func(out *[]byte) error

// Rendezvous mediates one full-resolution snapshot request at a time between
// an HTTP handler and the Capture Loop. The two signals are auto-reset
// channels of capacity 1; pending is an atomic flag enforcing the single
// outstanding request invariant (§3, §9).
type Rendezvous struct {
	log *zap.Logger

	pending atomic.Bool
	request chan *[]byte
	done    chan error
}

// NewRendezvous constructs an idle Rendezvous.
func NewRendezvous(log *zap.Logger) *Rendezvous {
	return &Rendezvous{
		log:     log,
		request: make(chan *[]byte, 1),
		done:    make(chan error, 1),
	}
}

// Capture implements §4.5. loopRunning reports whether the Capture Loop
// goroutine is currently alive; sync is invoked directly when it is not.
func (r *Rendezvous) Capture(loopRunning bool, sync Synchronous, out *[]byte) error {
	if !loopRunning {
		return sync(out)
	}

	if !r.pending.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer r.pending.Store(false)

	r.request <- out

	select {
	case err := <-r.done:
		return err
	case <-time.After(Wait):
		r.log.Warn("snapshot rendezvous timed out waiting for capture loop")
		return ErrTimeout
	}
}

// TryRequest is polled by the Capture Loop once per iteration (§4.2 step 2).
// It returns the pending target buffer and true if a request is outstanding.
func (r *Rendezvous) TryRequest() (*[]byte, bool) {
	select {
	case out := <-r.request:
		return out, true
	default:
		return nil, false
	}
}

// Signal is called by the Capture Loop after servicing (or failing) a
// request, waking the waiting Capture call.
func (r *Rendezvous) Signal(err error) {
	select {
	case r.done <- err:
	default:
	}
}
