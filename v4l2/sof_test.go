package v4l2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildJPEG(width, height int, trailer []byte) []byte {
	buf := []byte{0xFF, markerSOI}
	// a harmless APP0 segment before SOF, to exercise the generic skip path
	buf = append(buf, 0xFF, 0xE0, 0x00, 0x04, 'J', 'F')
	buf = append(buf, 0xFF, markerSOF0,
		0x00, 0x11, // segment length (not load-bearing for parsing)
		0x08, // sample precision
		byte(height>>8), byte(height),
		byte(width>>8), byte(width),
	)
	buf = append(buf, trailer...)
	return buf
}

func TestParseSOFDimensions(t *testing.T) {
	t.Run("finds SOF0 after a leading segment", func(t *testing.T) {
		buf := buildJPEG(1920, 1080, []byte{0xFF, markerEOI})
		dims, err := ParseSOFDimensions(buf)
		require.NoError(t, err)
		require.Equal(t, 1920, dims.Width)
		require.Equal(t, 1080, dims.Height)
	})

	t.Run("skips fill bytes before a marker", func(t *testing.T) {
		buf := []byte{0xFF, markerSOI, 0xFF, 0xFF, 0xFF, markerSOF0,
			0x00, 0x11, 0x08, 0x02, 0x58, 0x03, 0x20}
		dims, err := ParseSOFDimensions(buf)
		require.NoError(t, err)
		require.Equal(t, 800, dims.Width)
		require.Equal(t, 600, dims.Height)
	})

	t.Run("rejects missing SOI", func(t *testing.T) {
		_, err := ParseSOFDimensions([]byte{0x00, 0x01, 0x02})
		require.ErrorIs(t, err, ErrTruncatedJPEG)
	})

	t.Run("rejects buffer with no SOF", func(t *testing.T) {
		buf := []byte{0xFF, markerSOI, 0xFF, markerEOI}
		_, err := ParseSOFDimensions(buf)
		require.ErrorIs(t, err, ErrNoSOF)
	})

	t.Run("rejects truncated SOF segment", func(t *testing.T) {
		buf := []byte{0xFF, markerSOI, 0xFF, markerSOF0, 0x00, 0x11, 0x08}
		_, err := ParseSOFDimensions(buf)
		require.ErrorIs(t, err, ErrTruncatedJPEG)
	})
}
