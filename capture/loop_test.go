package capture

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/snapshot"
	"github.com/dgnorth/mjpgd/stream"
	"github.com/dgnorth/mjpgd/v4l2"
)

// openFakeDevice wires v4l2 package vars to a minimal in-memory MJPEG device
// at streamW x streamH (low-res) and 1280x720 (high-res), three buffers.
func openFakeDevice(t *testing.T, streamW, streamH uint32) *device.Context {
	t.Helper()

	v4l2.OpenDevice = func(path string, flags int, mode uint32) (uintptr, error) { return 7, nil }
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

	currentWidth := streamW
	currentHeight := streamH
	v4l2.SetPixFormat = func(fd uintptr, pixFmt v4l2.PixFormat) error {
		currentWidth, currentHeight = pixFmt.Width, pixFmt.Height
		return nil
	}
	v4l2.GetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) {
		return v4l2.PixFormat{Width: currentWidth, Height: currentHeight, PixelFormat: v4l2.PixelFmtMJPEG}, nil
	}
	v4l2.InitBuffers = func(fd uintptr, n uint32) (v4l2.RequestBuffers, error) {
		return v4l2.RequestBuffers{Count: n}, nil
	}
	v4l2.GetBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Length: 65536}, nil }
	v4l2.MapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) { return make([]byte, length), nil }
	v4l2.UnmapMemoryBuffer = func(buf []byte) error { return nil }
	v4l2.ReleaseBuffers = func(fd uintptr) error { return nil }
	v4l2.QueueBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Index: index}, nil }
	v4l2.StreamOn = func(fd uintptr) error { return nil }
	v4l2.StreamOff = func(fd uintptr) error { return nil }
	v4l2.SubscribeEvent = func(fd uintptr, sub *v4l2.EventSubscription) error { return errors.New("unsupported") }
	v4l2.DequeueEvent = func(fd uintptr) (*v4l2.Event, error) { return nil, errors.New("unsupported") }

	v4l2.WaitForDeviceRead = func(fd uintptr, timeout time.Duration) error { return nil }
	v4l2.DequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		return v4l2.Buffer{Index: 0, BytesUsed: uint32(device.MinFrameBytes + 10)}, nil
	}
	dev, err := device.Open(zap.NewNop(), "/dev/video0", device.WithStreamSize(streamW, streamH), device.WithPictureSize(1280, 720), device.WithDropCount(1))
	require.NoError(t, err)
	return dev
}

func TestLoopDispatchesUntilRegistryEmpty(t *testing.T) {
	dev := openFakeDevice(t, 640, 480)

	server, client := net.Pipe()
	defer client.Close()
	go func() {
		buf := make([]byte, 4096)
		for {
			if _, err := client.Read(buf); err != nil {
				return
			}
		}
	}()

	log := zap.NewNop()
	registry := stream.NewRegistry(log, nil)
	c := stream.NewClient(server)
	registry.Add(c)

	rendezvous := snapshot.NewRendezvous(log)
	loop := New(log, dev, registry, rendezvous, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		time.Sleep(50 * time.Millisecond)
		registry.Remove(c)
	}()

	err := loop.Run(ctx)
	require.NoError(t, err)
}
