package device

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dgnorth/mjpgd/v4l2"
)

func TestOpenNegotiatesMJPEGAndAllocatesPool(t *testing.T) {
	fakeDevice()

	ctx, err := Open(testLogger(), "/dev/video0", WithStreamSize(640, 480), WithPictureSize(1280, 720))
	require.NoError(t, err)
	require.Equal(t, uint32(640), ctx.StreamFormat().Width)
	require.Equal(t, uint32(480), ctx.StreamFormat().Height)
	require.Equal(t, uint32(1280), ctx.HighResFormat().Width)
	require.Equal(t, uint32(720), ctx.HighResFormat().Height)
	require.Len(t, ctx.buffers, BufferCount)
	require.False(t, ctx.eventsSupported)
}

func TestOpenFailsWithoutMJPEGFormat(t *testing.T) {
	fakeDevice()
	mockGetAllFormatDesc = func(fd uintptr) ([]v4l2.FormatDescription, error) {
		return []v4l2.FormatDescription{{PixelFormat: v4l2.PixelFmtYUYV}}, nil
	}

	_, err := Open(testLogger(), "/dev/video0")
	require.ErrorIs(t, err, ErrNoMJPEGFormat)
}

func TestOpenFailsWithoutStreamingCapability(t *testing.T) {
	fakeDevice()
	mockGetCapability = func(fd uintptr) (v4l2.Capability, error) {
		return v4l2.Capability{Capabilities: v4l2.CapVideoCapture}, nil
	}

	_, err := Open(testLogger(), "/dev/video0")
	require.ErrorIs(t, err, ErrUnsupportedCapability)
}

func TestFetchFrameAndReturnFrameRoundtrip(t *testing.T) {
	fakeDevice()
	mockWaitForRead = func(fd uintptr, timeout time.Duration) error { return nil }
	mockDequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		return v4l2.Buffer{Index: 1, BytesUsed: 3}, nil
	}

	ctx, err := Open(testLogger(), "/dev/video0")
	require.NoError(t, err)

	frame, err := ctx.FetchFrame()
	require.NoError(t, err)
	require.Len(t, frame, 3)

	_, err = ctx.FetchFrame()
	require.ErrorIs(t, err, ErrFrameAlreadyLoaned)

	require.NoError(t, ctx.ReturnFrame())
	require.ErrorIs(t, ctx.ReturnFrame(), ErrFrameNotLoaned)
}

func TestFetchFrameTimesOutAsNoFrame(t *testing.T) {
	fakeDevice()
	mockWaitForRead = func(fd uintptr, timeout time.Duration) error { return v4l2.ErrorTimeout }

	ctx, err := Open(testLogger(), "/dev/video0")
	require.NoError(t, err)

	_, err = ctx.FetchFrame()
	require.ErrorIs(t, err, ErrNoFrame)
}

func TestSwitchToHighResReallocatesPool(t *testing.T) {
	fakeDevice()
	ctx, err := Open(testLogger(), "/dev/video0", WithPictureSize(1280, 720))
	require.NoError(t, err)

	mockGetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) {
		return v4l2.PixFormat{Width: 1280, Height: 720, PixelFormat: v4l2.PixelFmtMJPEG}, nil
	}

	require.NoError(t, ctx.SwitchToHighRes())
	require.Equal(t, uint32(1280), ctx.StreamFormat().Width)

	mockGetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) {
		return v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixelFmtMJPEG}, nil
	}
	require.NoError(t, ctx.SwitchToLowRes())
	require.Equal(t, uint32(640), ctx.StreamFormat().Width)
}

func TestStreamingStartStopIsIdempotent(t *testing.T) {
	fakeDevice()
	streamOnCalls := 0
	mockStreamOn = func(fd uintptr) error { streamOnCalls++; return nil }
	mockStreamOff = func(fd uintptr) error { return nil }

	ctx, err := Open(testLogger(), "/dev/video0")
	require.NoError(t, err)

	require.NoError(t, ctx.StartStreaming())
	require.NoError(t, ctx.StartStreaming())
	require.Equal(t, 1, streamOnCalls)
	require.Equal(t, StateOn, ctx.State())

	require.NoError(t, ctx.StopStreaming())
	require.NoError(t, ctx.StopStreaming())
	require.Equal(t, StateOff, ctx.State())
}

func TestSystemErrorMarksDisconnected(t *testing.T) {
	fakeDevice()
	mockWaitForRead = func(fd uintptr, timeout time.Duration) error {
		return fmt.Errorf("%w: %w", v4l2.ErrorSystem, unix.ENODEV)
	}

	ctx, err := Open(testLogger(), "/dev/video0")
	require.NoError(t, err)

	_, err = ctx.FetchFrame()
	require.ErrorIs(t, err, ErrDisconnected)
	require.Equal(t, StateDisconnected, ctx.State())
}
