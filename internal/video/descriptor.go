package video

import (
	"fmt"
)

// StreamDescriptor reports the geometry and layout of a stream's frames
type StreamDescriptor struct {
	Width     int         `json:"width"`
	Height    int         `json:"height"`
	Format    PixelFormat `json:"-"`
	SizeBytes int         `json:"size_bytes"`
}

// NewStreamDescriptor builds a descriptor with SizeBytes derived from the format
func NewStreamDescriptor(width, height int, format PixelFormat) StreamDescriptor {
	return StreamDescriptor{
		Width:     width,
		Height:    height,
		Format:    format,
		SizeBytes: format.FrameSize(width, height),
	}
}

// Validate checks the descriptor can describe a real frame
func (d StreamDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("invalid frame dimensions %dx%d", d.Width, d.Height)
	}
	if !d.Format.Valid() {
		return fmt.Errorf("invalid pixel format %d", int(d.Format))
	}
	if d.SizeBytes < d.Format.FrameSize(d.Width, d.Height) {
		return fmt.Errorf("frame size %d too small for %dx%d %s", d.SizeBytes, d.Width, d.Height, d.Format)
	}
	return nil
}

// Aspect returns width/height
func (d StreamDescriptor) Aspect() float64 {
	if d.Height == 0 {
		return 0
	}
	return float64(d.Width) / float64(d.Height)
}

// WithFormat returns a descriptor of the same geometry in another format
func (d StreamDescriptor) WithFormat(format PixelFormat) StreamDescriptor {
	return NewStreamDescriptor(d.Width, d.Height, format)
}

func (d StreamDescriptor) String() string {
	return fmt.Sprintf("%dx%d %s", d.Width, d.Height, d.Format)
}

// Summary returns a JSON-friendly view of the descriptor
func (d StreamDescriptor) Summary() map[string]interface{} {
	return map[string]interface{}{
		"width":      d.Width,
		"height":     d.Height,
		"format":     d.Format.String(),
		"channels":   d.Format.Channels(),
		"size_bytes": d.SizeBytes,
	}
}
