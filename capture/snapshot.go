package capture

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/snapshot"
	"github.com/dgnorth/mjpgd/v4l2"
)

// snapshotAttempts bounds the SOF-width verification retries in the snapshot
// protocol (§4.2 steps d and g).
const snapshotAttempts = 10

// protocol runs the §4.2 snapshot protocol over a Device Context. It is used
// both by Loop (the device is already streaming at low-res) and by
// NewSynchronous (the loop is not running, so the caller's own goroutine
// brackets streaming start/stop around the same sequence, per §4.5).
type protocol struct {
	log *zap.Logger
	dev *device.Context
}

// NewSynchronous returns a snapshot.Synchronous closure that performs the
// full snapshot protocol directly, for use when the Capture Loop is not
// running (§4.5's synchronous fallback path).
func NewSynchronous(log *zap.Logger, dev *device.Context) snapshot.Synchronous {
	p := &protocol{log: log, dev: dev}
	return func(out *[]byte) error {
		if err := dev.StartStreaming(); err != nil {
			return fmt.Errorf("synchronous snapshot: start streaming: %w", err)
		}
		defer func() {
			if err := dev.StopStreaming(); err != nil {
				log.Warn("stop streaming after synchronous snapshot", zap.Error(err))
			}
		}()
		return p.run(out)
	}
}

// run implements §4.2 steps (a)-(h): stop, switch to high-res, restart,
// verify-and-accept one frame at the high-res width, copy it out, drop the
// configured leading-frame count, then switch back to low-res and purge any
// stale high-res frames before returning.
func (p *protocol) run(target *[]byte) error {
	if err := p.dev.StopStreaming(); err != nil {
		return fmt.Errorf("stop streaming: %w", err)
	}
	if err := p.dev.SwitchToHighRes(); err != nil {
		return fmt.Errorf("switch to high res: %w", err)
	}
	if err := p.dev.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming at high res: %w", err)
	}

	highRes := p.dev.HighResFormat()
	frame, err := p.acceptFrameAtWidth(highRes.Width)
	if err != nil {
		return err
	}
	*target = append((*target)[:0], frame...)
	if err := p.dev.ReturnFrame(); err != nil {
		return fmt.Errorf("return accepted snapshot frame: %w", err)
	}

	for i := uint32(0); i < p.dev.DropCount(); i++ {
		if _, err := p.fetchFrameBlocking(); err != nil {
			return fmt.Errorf("drop leading frame %d: %w", i, err)
		}
		if err := p.dev.ReturnFrame(); err != nil {
			return fmt.Errorf("return dropped frame %d: %w", i, err)
		}
	}

	if err := p.dev.StopStreaming(); err != nil {
		return fmt.Errorf("stop streaming after snapshot: %w", err)
	}
	if err := p.dev.SwitchToLowRes(); err != nil {
		return fmt.Errorf("switch to low res: %w", err)
	}
	if err := p.dev.StartStreaming(); err != nil {
		return fmt.Errorf("start streaming at low res: %w", err)
	}

	lowRes := p.dev.StreamFormat()
	if err := p.purgeUntilWidth(lowRes.Width); err != nil {
		p.log.Warn("purge after snapshot did not settle", zap.Error(err))
	}
	return nil
}

// acceptFrameAtWidth retries fetch+SOF-parse until a frame's width matches,
// returning it still loaned, or fails after snapshotAttempts tries (§4.2
// step d). Non-matching frames are returned immediately.
func (p *protocol) acceptFrameAtWidth(width uint32) ([]byte, error) {
	for i := 0; i < snapshotAttempts; i++ {
		frame, err := p.fetchFrameBlocking()
		if err != nil {
			return nil, fmt.Errorf("accept frame at width %d: %w", width, err)
		}
		dims, sofErr := v4l2.ParseSOFDimensions(frame)
		if sofErr == nil && uint32(dims.Width) == width {
			return frame, nil
		}
		if err := p.dev.ReturnFrame(); err != nil {
			return nil, fmt.Errorf("return mismatched frame: %w", err)
		}
	}
	return nil, fmt.Errorf("accept frame at width %d: no match after %d attempts", width, snapshotAttempts)
}

// purgeUntilWidth discards frames until one matches width, returning each
// (including the matching one), per §4.2 step g.
func (p *protocol) purgeUntilWidth(width uint32) error {
	for i := 0; i < snapshotAttempts; i++ {
		frame, err := p.fetchFrameBlocking()
		if err != nil {
			return err
		}
		dims, sofErr := v4l2.ParseSOFDimensions(frame)
		matched := sofErr == nil && uint32(dims.Width) == width
		if err := p.dev.ReturnFrame(); err != nil {
			return err
		}
		if matched {
			return nil
		}
	}
	return fmt.Errorf("purge: no frame at width %d after %d attempts", width, snapshotAttempts)
}

// fetchFrameBlocking retries FetchFrame across its internal readiness
// timeout until a frame arrives or a non-recoverable error occurs.
func (p *protocol) fetchFrameBlocking() ([]byte, error) {
	for {
		frame, err := p.dev.FetchFrame()
		if err == nil {
			return frame, nil
		}
		if errors.Is(err, device.ErrNoFrame) {
			continue
		}
		return nil, err
	}
}
