package httpapi

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/device"
	"github.com/dgnorth/mjpgd/v4l2"
)

func openFakeDevice(t *testing.T, frame []byte) *device.Context {
	t.Helper()

	var mmap []byte
	v4l2.OpenDevice = func(path string, flags int, mode uint32) (uintptr, error) { return 11, nil }
	v4l2.CloseDevice = func(fd uintptr) error { return nil }
	v4l2.GetCapability = func(fd uintptr) (v4l2.Capability, error) {
		return v4l2.Capability{Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming}, nil
	}
	v4l2.GetAllFormatDescriptions = func(fd uintptr) ([]v4l2.FormatDescription, error) {
		return []v4l2.FormatDescription{{PixelFormat: v4l2.PixelFmtMJPEG}}, nil
	}
	v4l2.GetAllFormatFrameSizes = func(fd uintptr) ([]v4l2.FrameSizeEnum, error) {
		return []v4l2.FrameSizeEnum{
			{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MaxWidth: 640, MaxHeight: 480}},
		}, nil
	}
	current := v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixelFmtMJPEG}
	v4l2.SetPixFormat = func(fd uintptr, pixFmt v4l2.PixFormat) error { current = pixFmt; return nil }
	v4l2.GetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) { return current, nil }
	v4l2.InitBuffers = func(fd uintptr, n uint32) (v4l2.RequestBuffers, error) { return v4l2.RequestBuffers{Count: n}, nil }
	v4l2.GetBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Length: 65536}, nil }
	v4l2.MapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) {
		mmap = make([]byte, length)
		return mmap, nil
	}
	v4l2.UnmapMemoryBuffer = func(buf []byte) error { return nil }
	v4l2.ReleaseBuffers = func(fd uintptr) error { return nil }
	v4l2.QueueBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Index: index}, nil }
	v4l2.StreamOn = func(fd uintptr) error { return nil }
	v4l2.StreamOff = func(fd uintptr) error { return nil }
	v4l2.SubscribeEvent = func(fd uintptr, sub *v4l2.EventSubscription) error { return errors.New("unsupported") }
	v4l2.DequeueEvent = func(fd uintptr) (*v4l2.Event, error) { return nil, errors.New("unsupported") }
	v4l2.WaitForDeviceRead = func(fd uintptr, timeout time.Duration) error { return nil }
	v4l2.DequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		// mmap is the last buffer mapped, i.e. the highest slot of the current pool.
		copy(mmap, frame)
		return v4l2.Buffer{Index: device.BufferCount - 1, BytesUsed: uint32(len(frame))}, nil
	}

	dev, err := device.Open(zap.NewNop(), "/dev/video0", device.WithStreamSize(640, 480), device.WithPictureSize(640, 480), device.WithDropCount(0))
	require.NoError(t, err)
	return dev
}

func jpegFrame() []byte {
	buf := []byte{0xFF, 0xD8, 0xFF, 0xC0, 0x00, 0x0B, 0x08, 0x01, 0xE0, 0x02, 0x80, 0x03}
	for len(buf) < device.MinFrameBytes+10 {
		buf = append(buf, 0x00)
	}
	return buf
}

func TestIndexPageListsEndpoints(t *testing.T) {
	dev := openFakeDevice(t, jpegFrame())
	s := New(zap.NewNop(), dev, "/dev/video0")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "/mjpg")
	require.Contains(t, rec.Body.String(), "/full_res")
}

func TestFullResSynchronousWhenLoopNotRunning(t *testing.T) {
	dev := openFakeDevice(t, jpegFrame())
	s := New(zap.NewNop(), dev, "/dev/video0")

	req := httptest.NewRequest(http.MethodGet, "/full_res", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Body.Bytes())
}

func TestUnknownRouteIs404(t *testing.T) {
	dev := openFakeDevice(t, jpegFrame())
	s := New(zap.NewNop(), dev, "/dev/video0")

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMJPGWithoutHijackerSupportReturns500(t *testing.T) {
	dev := openFakeDevice(t, jpegFrame())
	s := New(zap.NewNop(), dev, "/dev/video0")

	req := httptest.NewRequest(http.MethodGet, "/mjpg", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	dev := openFakeDevice(t, jpegFrame())
	s := New(zap.NewNop(), dev, "/dev/video0")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "mjpg_frames_dispatched_total")
}
