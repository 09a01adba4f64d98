// Package device owns the V4L2 descriptor, pixel format state and mmap buffer
// pool for a single capture device. It is the Device Context of the streaming
// engine: everything here is meant to be called from exactly one goroutine (the
// Capture Loop), with the sole exceptions of Open (before that goroutine starts)
// and Close (after it has joined). There is no internal locking; exclusivity is
// a calling-convention contract, not a runtime one.
package device

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/dgnorth/mjpgd/v4l2"
)

// BufferCount is the fixed size of the mmap buffer pool, per the spec's data model.
const BufferCount = 3

// fetchTimeout bounds fetchFrame's readiness wait so cancellation and
// resolution-switch requests remain observable from the Capture Loop.
const fetchTimeout = 200 * time.Millisecond

// MinFrameBytes is the smallest frame size considered genuine; anything shorter
// is assumed corrupt and dropped before it reaches fan-out.
const MinFrameBytes = 200

// State is the device streaming state.
type State int

const (
	StateOff State = iota
	StateOn
	StatePaused
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateOn:
		return "on"
	case StatePaused:
		return "paused"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Context is the Device Context (C1): an open V4L2 descriptor, its active and
// high-resolution pixel formats, and the mmap pool backing whichever format is
// currently active.
type Context struct {
	log  *zap.Logger
	path string
	fd   uintptr

	streamFormat  v4l2.PixFormat
	lowResFormat  v4l2.PixFormat
	highResFormat v4l2.PixFormat

	buffers [][]byte
	reqBufs v4l2.RequestBuffers

	state State

	dropCount    uint32
	minFrameWait time.Duration
	lastFrameAt  time.Time

	loaned      bool
	loanedIndex uint32

	eventsSupported bool
	closed          bool
}

// Open opens path, negotiates an MJPEG/JPEG capture format, and allocates the
// initial mmap pool at the streaming resolution. See spec §4.1 for the full
// negotiation sequence.
func Open(log *zap.Logger, path string, opts ...Option) (*Context, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	fd, err := v4l2.OpenDevice(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}

	c := &Context{
		log:          log,
		path:         path,
		fd:           fd,
		state:        StateOff,
		dropCount:    cfg.dropCount,
		minFrameWait: cfg.minFrameWait,
	}

	cap, err := v4l2.GetCapability(fd)
	if err != nil {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: capability: %w", err)
	}
	caps := cap.GetCapabilities()
	if caps&v4l2.CapVideoCapture == 0 {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: %w: no video capture", ErrUnsupportedCapability)
	}
	if caps&v4l2.CapStreaming == 0 && caps&v4l2.CapReadWrite == 0 {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: %w: no streaming or read/write I/O", ErrUnsupportedCapability)
	}

	descs, err := v4l2.GetAllFormatDescriptions(fd)
	if err != nil && len(descs) == 0 {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: enumerate formats: %w", err)
	}
	encoding, ok := firstMJPEGFormat(descs)
	if !ok {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: %s: %w", path, ErrNoMJPEGFormat)
	}

	sizes, err := v4l2.GetAllFormatFrameSizes(fd)
	if err != nil && len(sizes) == 0 {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: enumerate frame sizes: %w", err)
	}
	highW, highH := largestFrameSize(sizes, encoding)
	if cfg.picWidth != 0 && cfg.picHeight != 0 && frameSizeAdvertised(sizes, encoding, cfg.picWidth, cfg.picHeight) {
		highW, highH = cfg.picWidth, cfg.picHeight
	}
	c.highResFormat = v4l2.PixFormat{Width: highW, Height: highH, PixelFormat: encoding, Field: v4l2.FieldNone}

	requested := v4l2.PixFormat{Width: cfg.streamWidth, Height: cfg.streamHeight, PixelFormat: encoding, Field: v4l2.FieldNone}
	if err := c.switchRes(requested, false); err != nil {
		_ = v4l2.CloseDevice(fd)
		return nil, fmt.Errorf("device: initial format: %w", err)
	}
	c.lowResFormat = c.streamFormat
	if c.streamFormat.Width != cfg.streamWidth || c.streamFormat.Height != cfg.streamHeight {
		log.Warn("driver selected different streaming dimensions",
			zap.Uint32("requested_width", cfg.streamWidth), zap.Uint32("requested_height", cfg.streamHeight),
			zap.Uint32("actual_width", c.streamFormat.Width), zap.Uint32("actual_height", c.streamFormat.Height))
	}

	c.subscribeEvents()

	return c, nil
}

func firstMJPEGFormat(descs []v4l2.FormatDescription) (v4l2.FourCCType, bool) {
	for _, d := range descs {
		if d.PixelFormat == v4l2.PixelFmtMJPEG || d.PixelFormat == v4l2.PixelFmtJPEG {
			return d.PixelFormat, true
		}
	}
	return 0, false
}

func largestFrameSize(sizes []v4l2.FrameSizeEnum, encoding v4l2.FourCCType) (uint32, uint32) {
	var w, h uint32
	for _, s := range sizes {
		if s.PixelFormat != encoding {
			continue
		}
		if s.Size.MaxWidth*s.Size.MaxHeight > w*h {
			w, h = s.Size.MaxWidth, s.Size.MaxHeight
		}
	}
	return w, h
}

func frameSizeAdvertised(sizes []v4l2.FrameSizeEnum, encoding v4l2.FourCCType, width, height uint32) bool {
	for _, s := range sizes {
		if s.PixelFormat == encoding && s.Size.MaxWidth == width && s.Size.MaxHeight == height {
			return true
		}
	}
	return false
}

func (c *Context) subscribeEvents() {
	for _, evType := range []v4l2.EventType{v4l2.EventEOS, v4l2.EventSourceChange} {
		if err := v4l2.SubscribeEvent(c.fd, v4l2.NewEventSubscription(evType)); err != nil {
			c.log.Warn("device does not support event subscription", zap.Uint32("event_type", evType), zap.Error(err))
			return
		}
	}
	c.eventsSupported = true
}

// Close stops streaming if running, unmaps all buffers, releases the buffer
// request and closes the descriptor. Idempotent.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if c.state == StateDisconnected {
		return v4l2.CloseDevice(c.fd)
	}
	if err := c.StopStreaming(); err != nil {
		c.log.Warn("stop streaming during close", zap.Error(err))
	}
	if err := c.unmapPool(); err != nil {
		c.log.Warn("unmap pool during close", zap.Error(err))
	}
	return v4l2.CloseDevice(c.fd)
}

func (c *Context) unmapPool() error {
	for _, b := range c.buffers {
		if err := v4l2.UnmapMemoryBuffer(b); err != nil {
			return fmt.Errorf("device: unmap buffer: %w", err)
		}
	}
	c.buffers = nil
	if c.reqBufs.Count == 0 {
		return nil
	}
	if err := v4l2.ReleaseBuffers(c.fd); err != nil {
		return fmt.Errorf("device: release buffers: %w", err)
	}
	c.reqBufs = v4l2.RequestBuffers{}
	return nil
}

// switchRes applies target as the active format and allocates a fresh mmap
// pool of BufferCount slots, mmapping and enqueuing each one. If unmapFirst,
// the current pool is released before the new format is applied.
func (c *Context) switchRes(target v4l2.PixFormat, unmapFirst bool) error {
	if unmapFirst {
		if err := c.unmapPool(); err != nil {
			return err
		}
	}

	if err := v4l2.SetPixFormat(c.fd, target); err != nil {
		return classifyDeviceErr(err)
	}
	actual, err := v4l2.GetPixFormat(c.fd)
	if err != nil {
		return classifyDeviceErr(err)
	}

	reqBufs, err := v4l2.InitBuffers(c.fd, BufferCount)
	if err != nil {
		return fmt.Errorf("device: request buffers: %w", classifyDeviceErr(err))
	}

	buffers := make([][]byte, reqBufs.Count)
	for i := range buffers {
		buf, err := v4l2.GetBuffer(c.fd, uint32(i))
		if err != nil {
			return fmt.Errorf("device: query buffer %d: %w", i, classifyDeviceErr(err))
		}
		mapped, err := v4l2.MapMemoryBuffer(c.fd, int64(buf.Info.Offset), int(buf.Length))
		if err != nil {
			return fmt.Errorf("device: map buffer %d: %w", i, err)
		}
		buffers[i] = mapped
	}
	for i := range buffers {
		if _, err := v4l2.QueueBuffer(c.fd, uint32(i)); err != nil {
			return fmt.Errorf("device: queue buffer %d: %w", i, classifyDeviceErr(err))
		}
	}

	c.buffers = buffers
	c.reqBufs = reqBufs
	c.streamFormat = actual
	return nil
}

// SwitchToHighRes reconfigures the mmap pool at the remembered high-resolution format.
func (c *Context) SwitchToHighRes() error {
	target := c.highResFormat
	if err := c.switchRes(target, true); err != nil {
		return err
	}
	return nil
}

// SwitchToLowRes reconfigures the mmap pool back at the remembered streaming format.
func (c *Context) SwitchToLowRes() error {
	target := c.lowResFormat
	if err := c.switchRes(target, true); err != nil {
		return err
	}
	return nil
}

// StreamFormat returns the currently active format: the streaming format
// recorded at Open, or the high-resolution format between SwitchToHighRes and
// SwitchToLowRes.
func (c *Context) StreamFormat() v4l2.PixFormat { return c.streamFormat }

// HighResFormat returns the remembered high-resolution snapshot format.
func (c *Context) HighResFormat() v4l2.PixFormat { return c.highResFormat }

// State returns the current streaming state.
func (c *Context) State() State { return c.state }

// StartStreaming turns the device stream on. Idempotent; a second call succeeds
// without I/O. Disconnected is terminal.
func (c *Context) StartStreaming() error {
	switch c.state {
	case StateOn:
		return nil
	case StateDisconnected:
		return ErrDisconnected
	}
	if err := v4l2.StreamOn(c.fd); err != nil {
		return classifyDeviceErr(err)
	}
	c.state = StateOn
	c.lastFrameAt = time.Time{}
	return nil
}

// StopStreaming turns the device stream off. Idempotent; stopping an already-off
// or disconnected device succeeds without I/O.
func (c *Context) StopStreaming() error {
	switch c.state {
	case StateOff, StateDisconnected:
		return nil
	}
	if err := v4l2.StreamOff(c.fd); err != nil {
		return classifyDeviceErr(err)
	}
	c.state = StateOff
	return nil
}

// FetchFrame dequeues the next filled buffer, blocking up to fetchTimeout on
// readiness. Returns ErrNoFrame if no buffer became ready in time, or
// ErrDisconnected if the device was removed. The returned slice aliases mmap
// memory and is only valid until the matching ReturnFrame call.
func (c *Context) FetchFrame() ([]byte, error) {
	if c.loaned {
		return nil, ErrFrameAlreadyLoaned
	}

	if err := v4l2.WaitForDeviceRead(c.fd, fetchTimeout); err != nil {
		if errors.Is(err, v4l2.ErrorTimeout) {
			return nil, ErrNoFrame
		}
		return nil, c.fail(err)
	}

	buf, err := v4l2.DequeueBuffer(c.fd)
	if err != nil {
		if errors.Is(err, v4l2.ErrorTemporary) {
			return nil, ErrNoFrame
		}
		return nil, c.fail(err)
	}
	if int(buf.Index) >= len(c.buffers) {
		return nil, fmt.Errorf("device: dequeued buffer index %d out of range", buf.Index)
	}

	c.loaned = true
	c.loanedIndex = buf.Index
	c.lastFrameAt = time.Now()
	return c.buffers[buf.Index][:buf.BytesUsed], nil
}

// ReturnFrame re-queues the slot most recently returned by FetchFrame. Must be
// called exactly once per successful fetch before the next fetch.
func (c *Context) ReturnFrame() error {
	if !c.loaned {
		return ErrFrameNotLoaned
	}
	if _, err := v4l2.QueueBuffer(c.fd, c.loanedIndex); err != nil {
		return c.fail(err)
	}
	c.loaned = false
	return nil
}

// MinFrameWait reports the configured minimum inter-frame delay and when the
// last frame was delivered, letting the Capture Loop compute its throttle sleep.
func (c *Context) MinFrameWait() (time.Duration, time.Time) {
	return c.minFrameWait, c.lastFrameAt
}

// DropCount reports the configured leading-frame drop count for format changes.
func (c *Context) DropCount() uint32 { return c.dropCount }

// EventLoopTick performs a single non-blocking poll for device events. It
// returns stop=true if an End-of-Stream or Source-Change-Resolution event was
// observed, signaling the Capture Loop to exit so a higher layer can reopen.
func (c *Context) EventLoopTick() (stop bool, err error) {
	if !c.eventsSupported {
		return false, nil
	}
	ev, err := v4l2.DequeueEvent(c.fd)
	if err != nil {
		// An empty event queue on the non-blocking descriptor reports ENOENT.
		if errors.Is(err, v4l2.ErrorTemporary) || errors.Is(err, v4l2.ErrorUnsupported) || errors.Is(err, unix.ENOENT) {
			return false, nil
		}
		return false, c.fail(err)
	}
	switch ev.GetType() {
	case v4l2.EventEOS, v4l2.EventSourceChange:
		return true, nil
	default:
		return false, nil
	}
}

// fail classifies a device error, transitioning to StateDisconnected on ENODEV
// and returning ErrDisconnected; other errors are returned unchanged (wrapped).
func (c *Context) fail(err error) error {
	classified := classifyDeviceErr(err)
	if errors.Is(classified, ErrDisconnected) {
		c.state = StateDisconnected
		for _, b := range c.buffers {
			_ = v4l2.UnmapMemoryBuffer(b)
		}
		c.buffers = nil
	}
	return classified
}

// classifyDeviceErr only promotes an error to ErrDisconnected when the
// wrapped errno is ENODEV (§7: "Disconnected device — ENODEV at any
// point..."). ErrorSystem also covers EBADF, ENOMEM, EIO, ENXIO and EFAULT;
// those are logged and returned as plain failures, leaving the caller to
// decide whether to abort, instead of forcing a state transition the device
// may not actually warrant.
func classifyDeviceErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, v4l2.ErrorSystem) && errors.Is(err, unix.ENODEV) {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return err
}
