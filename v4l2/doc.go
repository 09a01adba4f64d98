// Package v4l2 provides the Video4Linux2 (V4L2) bindings this server's
// device package builds on: capability queries, MJPEG/JPEG format
// negotiation, frame size enumeration, mmap buffer streaming, and the
// source-change/end-of-stream event subscription used to notice a camera
// going away mid-stream.
//
// # Scope
//
// This is a deliberately narrow slice of V4L2: one capture device, one
// pixel format family (MJPEG/JPEG), streaming I/O only. It does not cover
// device controls (brightness/contrast/...), tuners, audio inputs,
// cropping, DV timings, video standards, or the media controller API —
// none of those ioctls are needed to negotiate a format and pull frames out
// of a single USB webcam, which is the only thing device.Context does with
// this package.
//
// # Core types
//
//   - Capability: device identification and supported capability flags
//   - PixFormat: the negotiated width/height/pixel format/field order
//   - FormatDescription, FrameSizeEnum: what a device advertises it can do
//   - Buffer, RequestBuffers: the mmap buffer pool bookkeeping
//   - Event, EventSubscription: VIDIOC_DQEVENT payloads
//
// # Call sequence
//
// OpenDevice, GetCapability, GetAllFormatDescriptions,
// GetAllFormatFrameSizes, SetPixFormat/GetPixFormat, InitBuffers,
// GetBuffer+MapMemoryBuffer per slot, QueueBuffer per slot, StreamOn,
// then WaitForDeviceRead/DequeueBuffer/QueueBuffer in a loop, StreamOff,
// UnmapMemoryBuffer+ReleaseBuffers, CloseDevice. device.Context drives
// exactly this sequence; see its package doc for the state machine around
// it.
//
// # Error handling
//
// Calls that go through an ioctl return one of the sentinels in errors.go
// (ErrorSystem, ErrorBadArgument, ErrorUnsupported, ErrorTemporary,
// ErrorTimeout, ErrorInterrupted), wrapped together with the underlying errno
// via %w. Errnos with no matching sentinel, and failures outside ioctl such as
// opening the device, come back without a sentinel. Callers use errors.Is,
// against a sentinel or, where the sentinel is too coarse, against the errno
// itself (device.classifyDeviceErr checks for ENODEV); never string matching.
//
// # Thread safety
//
// None of these calls are safe to invoke concurrently on the same file
// descriptor; the kernel serializes ioctls on a device per-fd but this
// package adds no locking of its own. device.Context is the only caller and
// restricts itself to a single goroutine, by convention rather than by any
// lock here.
//
// # Testability
//
// The exported functions device.Context calls (OpenDevice, GetCapability,
// SetPixFormat, QueueBuffer, DequeueBuffer, StreamOn, and the rest of the
// call sequence above) are package-level variables holding a closure, not
// plain funcs; other helpers, such as UnsubscribeEvent, are plain funcs. Tests in the device and capture packages
// reassign these variables to fakes before exercising code that calls
// through this package, rather than threading an interface through every
// call site.
package v4l2
