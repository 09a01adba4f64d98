package capture

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/v4l2"
)

// jpegWithDims builds a minimal SOI+SOF0 JPEG advertising width x height,
// padded to clear device.MinFrameBytes.
func jpegWithDims(width, height int) []byte {
	buf := []byte{0xFF, 0xD8}
	buf = append(buf, 0xFF, 0xC0, 0x00, 0x0B, 0x08,
		byte(height>>8), byte(height), byte(width>>8), byte(width), 0x03)
	for len(buf) < device.MinFrameBytes+10 {
		buf = append(buf, 0x00)
	}
	return buf
}

// openFakeDeviceWithFrames wires a device.Context whose DequeueBuffer cycles
// through the given frames in order, writing each into the mmap slot before
// reporting it ready.
func openFakeDeviceWithFrames(t *testing.T, streamW, streamH uint32, frames [][]byte) *device.Context {
	t.Helper()

	var mmap [][]byte
	v4l2.OpenDevice = func(path string, flags int, mode uint32) (uintptr, error) { return 9, nil }
	v4l2.CloseDevice = func(fd uintptr) error { return nil }
	v4l2.GetCapability = func(fd uintptr) (v4l2.Capability, error) {
		return v4l2.Capability{Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming}, nil
	}
	v4l2.GetAllFormatDescriptions = func(fd uintptr) ([]v4l2.FormatDescription, error) {
		return []v4l2.FormatDescription{{PixelFormat: v4l2.PixelFmtMJPEG}}, nil
	}
	v4l2.GetAllFormatFrameSizes = func(fd uintptr) ([]v4l2.FrameSizeEnum, error) {
		return []v4l2.FrameSizeEnum{
			{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MaxWidth: streamW, MaxHeight: streamH}},
			{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MaxWidth: 1280, MaxHeight: 720}},
		}, nil
	}
	current := v4l2.PixFormat{Width: streamW, Height: streamH, PixelFormat: v4l2.PixelFmtMJPEG}
	v4l2.SetPixFormat = func(fd uintptr, pixFmt v4l2.PixFormat) error { current = pixFmt; return nil }
	v4l2.GetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) { return current, nil }
	v4l2.InitBuffers = func(fd uintptr, n uint32) (v4l2.RequestBuffers, error) { return v4l2.RequestBuffers{Count: n}, nil }
	v4l2.GetBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Length: 65536}, nil }
	v4l2.MapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) {
		b := make([]byte, length)
		mmap = append(mmap, b)
		return b, nil
	}
	v4l2.UnmapMemoryBuffer = func(buf []byte) error { return nil }
	v4l2.ReleaseBuffers = func(fd uintptr) error { return nil }
	v4l2.QueueBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Index: index}, nil }
	v4l2.StreamOn = func(fd uintptr) error { return nil }
	v4l2.StreamOff = func(fd uintptr) error { return nil }
	v4l2.SubscribeEvent = func(fd uintptr, sub *v4l2.EventSubscription) error { return errors.New("unsupported") }
	v4l2.DequeueEvent = func(fd uintptr) (*v4l2.Event, error) { return nil, errors.New("unsupported") }
	v4l2.WaitForDeviceRead = func(fd uintptr, timeout time.Duration) error { return nil }

	next := 0
	v4l2.DequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		frame := frames[next%len(frames)]
		next++
		slot := mmap[len(mmap)-device.BufferCount]
		copy(slot, frame)
		return v4l2.Buffer{Index: 0, BytesUsed: uint32(len(frame))}, nil
	}

	dev, err := device.Open(zap.NewNop(), "/dev/video0",
		device.WithStreamSize(streamW, streamH), device.WithPictureSize(1280, 720), device.WithDropCount(1))
	require.NoError(t, err)
	return dev
}

func TestSynchronousSnapshotReturnsHighResFrameAndRestoresLowRes(t *testing.T) {
	lowFrame := jpegWithDims(640, 480)
	highFrame := jpegWithDims(1280, 720)
	frames := [][]byte{lowFrame, lowFrame, highFrame, lowFrame, lowFrame, lowFrame}

	dev := openFakeDeviceWithFrames(t, 640, 480, frames)
	sync := NewSynchronous(zap.NewNop(), dev)

	var out []byte
	require.NoError(t, sync(&out))

	dims, err := v4l2.ParseSOFDimensions(out)
	require.NoError(t, err)
	require.Equal(t, 1280, dims.Width)
	require.Equal(t, 720, dims.Height)
	require.Equal(t, uint32(640), dev.StreamFormat().Width)
}
