package v4l2

import "fmt"

// ErrTruncatedJPEG indicates the buffer ended before a Start-Of-Frame marker was found.
var ErrTruncatedJPEG = fmt.Errorf("jpeg: truncated before SOF marker")

// ErrNoSOF indicates the buffer was well-formed JPEG but contained no baseline SOF0 marker.
var ErrNoSOF = fmt.Errorf("jpeg: no SOF0 marker found")

const (
	markerSOI  = 0xD8
	markerEOI  = 0xD9
	markerSOF0 = 0xC0
	markerRST0 = 0xD0
	markerRST7 = 0xD7
	markerTEM  = 0x01
)

// SOFDimensions holds the width and height extracted from a JPEG Start-Of-Frame segment.
type SOFDimensions struct {
	Width  int
	Height int
}

// ParseSOFDimensions scans a JPEG byte stream for its baseline Start-Of-Frame (0xFFC0)
// marker and extracts the encoded width and height, without decoding any pixel data.
//
// The device's own encoder is trusted to produce well-formed JPEG; this walks only the
// marker segments needed to reach SOF0, per the byte layout described in
// https://www.w3.org/Graphics/JPEG/itu-t81.pdf Annex B.
func ParseSOFDimensions(buf []byte) (SOFDimensions, error) {
	if len(buf) < 4 || buf[0] != 0xFF || buf[1] != markerSOI {
		return SOFDimensions{}, ErrTruncatedJPEG
	}

	pos := 2
	for pos < len(buf) {
		if buf[pos] != 0xFF {
			return SOFDimensions{}, fmt.Errorf("jpeg: expected marker at offset %d", pos)
		}
		// skip fill bytes (0xFF repeated before the real marker byte)
		for pos < len(buf) && buf[pos] == 0xFF {
			pos++
		}
		if pos >= len(buf) {
			return SOFDimensions{}, ErrTruncatedJPEG
		}
		marker := buf[pos]
		pos++

		switch {
		case marker == markerSOI || marker == markerEOI || marker == markerTEM,
			marker >= markerRST0 && marker <= markerRST7:
			continue
		case marker == markerSOF0:
			if pos+7 > len(buf) {
				return SOFDimensions{}, ErrTruncatedJPEG
			}
			// segment length (2 bytes) + precision (1 byte) then height, width (2 bytes each, big-endian)
			height := int(buf[pos+3])<<8 | int(buf[pos+4])
			width := int(buf[pos+5])<<8 | int(buf[pos+6])
			return SOFDimensions{Width: width, Height: height}, nil
		default:
			if pos+2 > len(buf) {
				return SOFDimensions{}, ErrTruncatedJPEG
			}
			segLen := int(buf[pos])<<8 | int(buf[pos+1])
			if segLen < 2 {
				return SOFDimensions{}, fmt.Errorf("jpeg: invalid segment length %d at offset %d", segLen, pos)
			}
			pos += segLen
		}
	}
	return SOFDimensions{}, ErrNoSOF
}
