// Package gstreamer runs gst-launch style pipelines that exchange raw frames
// with Go code through appsink and appsrc elements.
package gstreamer

import (
	"fmt"
	"sync"

	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/tinyzimmer/go-gst/gst"
)

var initOnce sync.Once

// ensureInit initializes GStreamer once per process
func ensureInit() {
	initOnce.Do(func() {
		gst.Init(nil)
	})
}

// CapsFormat returns the video/x-raw format name for a pixel format
func CapsFormat(f video.PixelFormat) (string, error) {
	switch f {
	case video.FormatGray8:
		return "GRAY8", nil
	case video.FormatRGB24:
		return "RGB", nil
	case video.FormatBGR24:
		return "BGR", nil
	case video.FormatRGBA:
		return "RGBA", nil
	case video.FormatYUYV422:
		return "YUY2", nil
	case video.FormatYUV420P:
		return "I420", nil
	}
	return "", fmt.Errorf("no gstreamer caps for %s", f)
}

// rowStride is the stride GStreamer uses for single-plane formats: rows are
// padded to a multiple of four bytes
func rowStride(desc video.StreamDescriptor) (rowBytes, stride int, ok bool) {
	switch desc.Format {
	case video.FormatGray8, video.FormatRGB24, video.FormatBGR24, video.FormatRGBA:
		rowBytes = desc.Width * desc.Format.BitsPerPixel() / 8
	case video.FormatYUYV422:
		rowBytes = (desc.Width + 1) / 2 * 4
	default:
		return 0, 0, false
	}
	return rowBytes, (rowBytes + 3) &^ 3, true
}

// copyFrame copies one mapped GStreamer buffer into dst, dropping row padding
func copyFrame(dst, data []byte, desc video.StreamDescriptor) bool {
	if len(data) == desc.SizeBytes {
		copy(dst[:desc.SizeBytes], data)
		return true
	}
	rowBytes, stride, ok := rowStride(desc)
	if !ok || len(data) < stride*(desc.Height-1)+rowBytes {
		return false
	}
	for y := 0; y < desc.Height; y++ {
		copy(dst[y*rowBytes:(y+1)*rowBytes], data[y*stride:y*stride+rowBytes])
	}
	return true
}
