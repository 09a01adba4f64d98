package device

import "errors"

// ErrDisconnected indicates the V4L2 device was physically removed (ENODEV at any
// ioctl). The Context transitions to StateDisconnected and releases mapped memory;
// it is terminal and the caller must reopen the device to recover.
var ErrDisconnected = errors.New("device: disconnected")

// ErrNoFrame indicates fetchFrame's readiness wait elapsed without a buffer becoming
// available. It is not a failure: callers should treat it as "try again later" so
// cancellation and resolution-switch requests stay observable.
var ErrNoFrame = errors.New("device: no frame ready")

// ErrNoMJPEGFormat indicates the device advertises no MJPEG or JPEG pixel format.
var ErrNoMJPEGFormat = errors.New("device: no MJPEG or JPEG format advertised")

// ErrUnsupportedCapability indicates the device lacks video capture, or lacks
// both streaming and read/write I/O.
var ErrUnsupportedCapability = errors.New("device: missing required capability")

// ErrFrameNotLoaned indicates returnFrame was called without a matching fetchFrame.
var ErrFrameNotLoaned = errors.New("device: no frame loaned")

// ErrFrameAlreadyLoaned indicates fetchFrame was called again before the previous
// frame was returned, violating the exactly-once loan discipline.
var ErrFrameAlreadyLoaned = errors.New("device: previous frame not returned")
