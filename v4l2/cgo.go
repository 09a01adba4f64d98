package v4l2

/*
#cgo linux CFLAGS: -I/usr/include

#include <linux/videodev2.h>
*/
import "C"

// This file centralizes the CGO compiler directive for the v4l2 package.
//
// videodev2.h is the only kernel UAPI header this package needs: every
// constant and struct referenced anywhere under v4l2/ (buffer types, pixel
// formats, colorspaces, capability flags, the streaming ioctls, the event
// subscription ioctls and their v4l2_event_* payloads) is declared there.
// v4l2-controls.h (V4L2_CID_* control IDs) and v4l2-common.h are deliberately
// not included: this package never issues VIDIOC_G_CTRL/S_CTRL or touches
// tuners, audio inputs, or the media controller, so neither header has
// anything this package would call.
//
// The header comes from /usr/include, provided by linux-libc-dev
// (Debian/Ubuntu), kernel-headers (RHEL/Fedora), or linux-headers (Arch
// Linux). To build against a different kernel's headers, override the
// include path with CGO_CFLAGS:
//
//	CGO_CFLAGS="-I/path/to/custom/headers" go build ./...
//
// Cross-compiling mjpgd for another architecture works the same way, pointed
// at the target sysroot:
//
//	CGO_CFLAGS="-I/path/to/sysroot/usr/include" \
//	CC=aarch64-linux-gnu-gcc \
//	GOOS=linux GOARCH=arm64 \
//	go build ./cmd/mjpgd
