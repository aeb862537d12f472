package video

import (
	"fmt"
	"strings"
)

// PixelFormat describes the byte layout of one raw frame
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatGray8
	FormatRGB24
	FormatBGR24
	FormatRGBA
	FormatYUYV422
	FormatYUV420P
)

var formatNames = map[PixelFormat]string{
	FormatGray8:   "GRAY8",
	FormatRGB24:   "RGB24",
	FormatBGR24:   "BGR24",
	FormatRGBA:    "RGBA",
	FormatYUYV422: "YUYV422",
	FormatYUV420P: "YUV420P",
}

var formatAliases = map[string]PixelFormat{
	"GRAY8":   FormatGray8,
	"GRAY":    FormatGray8,
	"Y8":      FormatGray8,
	"RGB24":   FormatRGB24,
	"RGB":     FormatRGB24,
	"BGR24":   FormatBGR24,
	"BGR":     FormatBGR24,
	"RGBA":    FormatRGBA,
	"RGBA32":  FormatRGBA,
	"YUYV422": FormatYUYV422,
	"YUYV":    FormatYUYV422,
	"YUY2":    FormatYUYV422,
	"YUV420P": FormatYUV420P,
	"I420":    FormatYUV420P,
}

// AllFormats lists every supported pixel format in declaration order
func AllFormats() []PixelFormat {
	return []PixelFormat{FormatGray8, FormatRGB24, FormatBGR24, FormatRGBA, FormatYUYV422, FormatYUV420P}
}

// ParsePixelFormat resolves a format name or alias (case-insensitive)
func ParsePixelFormat(name string) (PixelFormat, error) {
	f, ok := formatAliases[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return FormatUnknown, fmt.Errorf("unsupported pixel format %q", name)
	}
	return f, nil
}

func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return "UNKNOWN"
}

// Valid reports whether f is one of the known formats
func (f PixelFormat) Valid() bool {
	_, ok := formatNames[f]
	return ok
}

// Channels returns the number of color channels carried by the format.
// Only GRAY8 is single-channel.
func (f PixelFormat) Channels() int {
	switch f {
	case FormatGray8:
		return 1
	case FormatRGB24, FormatBGR24, FormatYUYV422, FormatYUV420P:
		return 3
	case FormatRGBA:
		return 4
	default:
		return 0
	}
}

// BitsPerPixel returns the average storage cost of one pixel
func (f PixelFormat) BitsPerPixel() int {
	switch f {
	case FormatGray8:
		return 8
	case FormatRGB24, FormatBGR24:
		return 24
	case FormatRGBA:
		return 32
	case FormatYUYV422:
		return 16
	case FormatYUV420P:
		return 12
	default:
		return 0
	}
}

// FrameSize returns the number of bytes needed to hold one full frame.
// Chroma planes and packed macropixels are rounded up for odd dimensions.
func (f PixelFormat) FrameSize(width, height int) int {
	if width <= 0 || height <= 0 {
		return 0
	}
	switch f {
	case FormatGray8:
		return width * height
	case FormatRGB24, FormatBGR24:
		return width * height * 3
	case FormatRGBA:
		return width * height * 4
	case FormatYUYV422:
		return ((width + 1) / 2) * 4 * height
	case FormatYUV420P:
		cw, ch := (width+1)/2, (height+1)/2
		return width*height + 2*cw*ch
	default:
		return 0
	}
}

// TextureLayout is how a display interprets an uploaded buffer
type TextureLayout int

const (
	LayoutColor TextureLayout = iota
	LayoutLuminance
)

func (l TextureLayout) String() string {
	if l == LayoutLuminance {
		return "luminance"
	}
	return "color"
}

// Layout picks the texture layout for the format: 1-channel formats upload as luminance
func (f PixelFormat) Layout() TextureLayout {
	if f.Channels() == 1 {
		return LayoutLuminance
	}
	return LayoutColor
}
