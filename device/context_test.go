package device

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dgnorth/mjpgd/v4l2"
)

// Mock function variables, reassigned per test. Following the package-level
// function-variable mocking idiom used against the v4l2 package elsewhere in
// this codebase: the v4l2 functions under test are themselves vars, and this
// init() redirects them to dispatch through these hooks.
var (
	mockOpenDevice       func(path string, flags int, mode uint32) (uintptr, error)
	mockCloseDevice      func(fd uintptr) error
	mockGetCapability    func(fd uintptr) (v4l2.Capability, error)
	mockGetAllFormatDesc func(fd uintptr) ([]v4l2.FormatDescription, error)
	mockGetAllFrameSizes func(fd uintptr) ([]v4l2.FrameSizeEnum, error)
	mockGetPixFormat     func(fd uintptr) (v4l2.PixFormat, error)
	mockSetPixFormat     func(fd uintptr, pixFmt v4l2.PixFormat) error
	mockInitBuffers      func(fd uintptr, n uint32) (v4l2.RequestBuffers, error)
	mockGetBuffer        func(fd uintptr, index uint32) (v4l2.Buffer, error)
	mockMapMemoryBuffer  func(fd uintptr, offset int64, length int) ([]byte, error)
	mockUnmapMemoryBuf   func(buf []byte) error
	mockQueueBuffer      func(fd uintptr, index uint32) (v4l2.Buffer, error)
	mockDequeueBuffer    func(fd uintptr) (v4l2.Buffer, error)
	mockStreamOn         func(fd uintptr) error
	mockStreamOff        func(fd uintptr) error
	mockWaitForRead      func(fd uintptr, timeout time.Duration) error
	mockReleaseBuffers   func(fd uintptr) error
	mockSubscribeEvent   func(fd uintptr, sub *v4l2.EventSubscription) error
	mockDequeueEvent     func(fd uintptr) (*v4l2.Event, error)
)

func init() {
	v4l2.OpenDevice = func(path string, flags int, mode uint32) (uintptr, error) {
		if mockOpenDevice != nil {
			return mockOpenDevice(path, flags, mode)
		}
		return 0, errors.New("mockOpenDevice not set")
	}
	v4l2.CloseDevice = func(fd uintptr) error {
		if mockCloseDevice != nil {
			return mockCloseDevice(fd)
		}
		return nil
	}
	v4l2.GetCapability = func(fd uintptr) (v4l2.Capability, error) {
		if mockGetCapability != nil {
			return mockGetCapability(fd)
		}
		return v4l2.Capability{}, errors.New("mockGetCapability not set")
	}
	v4l2.GetAllFormatDescriptions = func(fd uintptr) ([]v4l2.FormatDescription, error) {
		if mockGetAllFormatDesc != nil {
			return mockGetAllFormatDesc(fd)
		}
		return nil, errors.New("mockGetAllFormatDesc not set")
	}
	v4l2.GetAllFormatFrameSizes = func(fd uintptr) ([]v4l2.FrameSizeEnum, error) {
		if mockGetAllFrameSizes != nil {
			return mockGetAllFrameSizes(fd)
		}
		return nil, errors.New("mockGetAllFrameSizes not set")
	}
	v4l2.GetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) {
		if mockGetPixFormat != nil {
			return mockGetPixFormat(fd)
		}
		return v4l2.PixFormat{}, errors.New("mockGetPixFormat not set")
	}
	v4l2.SetPixFormat = func(fd uintptr, pixFmt v4l2.PixFormat) error {
		if mockSetPixFormat != nil {
			return mockSetPixFormat(fd, pixFmt)
		}
		return errors.New("mockSetPixFormat not set")
	}
	v4l2.InitBuffers = func(fd uintptr, n uint32) (v4l2.RequestBuffers, error) {
		if mockInitBuffers != nil {
			return mockInitBuffers(fd, n)
		}
		return v4l2.RequestBuffers{}, errors.New("mockInitBuffers not set")
	}
	v4l2.GetBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) {
		if mockGetBuffer != nil {
			return mockGetBuffer(fd, index)
		}
		return v4l2.Buffer{}, errors.New("mockGetBuffer not set")
	}
	v4l2.MapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) {
		if mockMapMemoryBuffer != nil {
			return mockMapMemoryBuffer(fd, offset, length)
		}
		return nil, errors.New("mockMapMemoryBuffer not set")
	}
	v4l2.UnmapMemoryBuffer = func(buf []byte) error {
		if mockUnmapMemoryBuf != nil {
			return mockUnmapMemoryBuf(buf)
		}
		return nil
	}
	v4l2.QueueBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) {
		if mockQueueBuffer != nil {
			return mockQueueBuffer(fd, index)
		}
		return v4l2.Buffer{}, errors.New("mockQueueBuffer not set")
	}
	v4l2.DequeueBuffer = func(fd uintptr) (v4l2.Buffer, error) {
		if mockDequeueBuffer != nil {
			return mockDequeueBuffer(fd)
		}
		return v4l2.Buffer{}, errors.New("mockDequeueBuffer not set")
	}
	v4l2.StreamOn = func(fd uintptr) error {
		if mockStreamOn != nil {
			return mockStreamOn(fd)
		}
		return errors.New("mockStreamOn not set")
	}
	v4l2.StreamOff = func(fd uintptr) error {
		if mockStreamOff != nil {
			return mockStreamOff(fd)
		}
		return errors.New("mockStreamOff not set")
	}
	v4l2.WaitForDeviceRead = func(fd uintptr, timeout time.Duration) error {
		if mockWaitForRead != nil {
			return mockWaitForRead(fd, timeout)
		}
		return errors.New("mockWaitForRead not set")
	}
	v4l2.ReleaseBuffers = func(fd uintptr) error {
		if mockReleaseBuffers != nil {
			return mockReleaseBuffers(fd)
		}
		return nil
	}
	v4l2.SubscribeEvent = func(fd uintptr, sub *v4l2.EventSubscription) error {
		if mockSubscribeEvent != nil {
			return mockSubscribeEvent(fd, sub)
		}
		return errors.New("mockSubscribeEvent not set")
	}
	v4l2.DequeueEvent = func(fd uintptr) (*v4l2.Event, error) {
		if mockDequeueEvent != nil {
			return mockDequeueEvent(fd)
		}
		return nil, errors.New("mockDequeueEvent not set")
	}
}

func resetMocks() {
	mockOpenDevice = nil
	mockCloseDevice = nil
	mockGetCapability = nil
	mockGetAllFormatDesc = nil
	mockGetAllFrameSizes = nil
	mockGetPixFormat = nil
	mockSetPixFormat = nil
	mockInitBuffers = nil
	mockGetBuffer = nil
	mockMapMemoryBuffer = nil
	mockUnmapMemoryBuf = nil
	mockQueueBuffer = nil
	mockDequeueBuffer = nil
	mockStreamOn = nil
	mockStreamOff = nil
	mockWaitForRead = nil
	mockReleaseBuffers = nil
	mockSubscribeEvent = nil
	mockDequeueEvent = nil
}

func testLogger() *zap.Logger { return zap.NewNop() }

// fakeDevice wires up enough mock behavior to let Open() succeed with a single
// MJPEG format at 640x480 (streaming) and 1280x720 (high-res), three buffers,
// and no event subscription support.
func fakeDevice() {
	resetMocks()
	mockOpenDevice = func(path string, flags int, mode uint32) (uintptr, error) { return 42, nil }
	mockGetCapability = func(fd uintptr) (v4l2.Capability, error) {
		return v4l2.Capability{Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming}, nil
	}
	mockGetAllFormatDesc = func(fd uintptr) ([]v4l2.FormatDescription, error) {
		return []v4l2.FormatDescription{{Index: 0, PixelFormat: v4l2.PixelFmtMJPEG, Description: "Motion-JPEG"}}, nil
	}
	mockGetAllFrameSizes = func(fd uintptr) ([]v4l2.FrameSizeEnum, error) {
		return []v4l2.FrameSizeEnum{
			{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MaxWidth: 640, MaxHeight: 480}},
			{PixelFormat: v4l2.PixelFmtMJPEG, Size: v4l2.FrameSize{MaxWidth: 1280, MaxHeight: 720}},
		}, nil
	}
	mockSetPixFormat = func(fd uintptr, pixFmt v4l2.PixFormat) error { return nil }
	mockGetPixFormat = func(fd uintptr) (v4l2.PixFormat, error) {
		return v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixelFmtMJPEG}, nil
	}
	mockInitBuffers = func(fd uintptr, n uint32) (v4l2.RequestBuffers, error) {
		return v4l2.RequestBuffers{Count: n}, nil
	}
	mockGetBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) {
		return v4l2.Buffer{Length: 4096}, nil
	}
	mockMapMemoryBuffer = func(fd uintptr, offset int64, length int) ([]byte, error) {
		return make([]byte, length), nil
	}
	mockQueueBuffer = func(fd uintptr, index uint32) (v4l2.Buffer, error) { return v4l2.Buffer{Index: index}, nil }
	mockUnmapMemoryBuf = func(buf []byte) error { return nil }
	mockReleaseBuffers = func(fd uintptr) error { return nil }
	mockSubscribeEvent = func(fd uintptr, sub *v4l2.EventSubscription) error {
		return errors.New("subscription unsupported")
	}
	mockCloseDevice = func(fd uintptr) error { return nil }
}
