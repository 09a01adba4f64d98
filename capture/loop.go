// Package capture implements the Capture Loop (C2): the single goroutine
// that owns the Device Context, drives frame delivery to the Client Registry,
// and services full-resolution snapshot requests without tearing down the
// live stream.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/snapshot"
	"github.com/dgnorth/mjpgd/stream"
)

// Loop is the Capture Loop. A fresh Loop is created for each run (first
// client arrival) and discarded when it exits; the Device Context and
// Registry it wraps outlive individual loop runs.
type Loop struct {
	log        *zap.Logger
	dev        *device.Context
	registry   *stream.Registry
	rendezvous *snapshot.Rendezvous

	onSnapshotOutcome func(outcome string)
}

// New builds a Capture Loop over an already-open Device Context.
func New(log *zap.Logger, dev *device.Context, registry *stream.Registry, rendezvous *snapshot.Rendezvous, onSnapshotOutcome func(outcome string)) *Loop {
	return &Loop{log: log, dev: dev, registry: registry, rendezvous: rendezvous, onSnapshotOutcome: onSnapshotOutcome}
}

// Run executes the loop body (§4.2) until ctx is cancelled, the device
// disconnects, an unrecoverable error occurs, or the client registry empties
// out after a dispatch. It starts streaming on entry and stops it on exit.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.dev.StartStreaming(); err != nil {
		return fmt.Errorf("capture: start streaming: %w", err)
	}
	defer func() {
		if err := l.dev.StopStreaming(); err != nil {
			l.log.Warn("stop streaming on loop exit", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		stop, err := l.dev.EventLoopTick()
		if err != nil {
			return fmt.Errorf("capture: event tick: %w", err)
		}
		if stop {
			l.log.Info("device signaled end of stream or source change, exiting capture loop")
			return nil
		}

		if target, ok := l.rendezvous.TryRequest(); ok {
			err := l.runSnapshotProtocol(target)
			l.reportSnapshotOutcome(err)
			l.rendezvous.Signal(err)
			if err != nil {
				return fmt.Errorf("capture: snapshot protocol: %w", err)
			}
		}

		l.throttleForMinFrameInterval()

		frame, err := l.dev.FetchFrame()
		if err != nil {
			if errors.Is(err, device.ErrNoFrame) {
				continue
			}
			return fmt.Errorf("capture: fetch frame: %w", err)
		}

		if len(frame) < device.MinFrameBytes {
			if err := l.dev.ReturnFrame(); err != nil {
				return fmt.Errorf("capture: return undersized frame: %w", err)
			}
			continue
		}

		remaining := l.registry.Dispatch(frame)
		if err := l.dev.ReturnFrame(); err != nil {
			return fmt.Errorf("capture: return frame: %w", err)
		}
		if remaining == 0 {
			l.log.Info("no streaming clients remain, exiting capture loop")
			return nil
		}
	}
}

func (l *Loop) throttleForMinFrameInterval() {
	wait, last := l.dev.MinFrameWait()
	if wait <= 0 || last.IsZero() {
		return
	}
	if remaining := wait - time.Since(last); remaining > 0 {
		time.Sleep(remaining)
	}
}

func (l *Loop) reportSnapshotOutcome(err error) {
	if l.onSnapshotOutcome == nil {
		return
	}
	switch {
	case err == nil:
		l.onSnapshotOutcome("ok")
	default:
		l.onSnapshotOutcome("error")
	}
}

// runSnapshotProtocol implements §4.2's snapshot protocol (a)-(h).
func (l *Loop) runSnapshotProtocol(target *[]byte) error {
	return (&protocol{log: l.log, dev: l.dev}).run(target)
}