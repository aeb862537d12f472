// Package video holds the data model shared by frame sources, sinks and
// display surfaces: pixel formats, stream descriptors, the reusable frame
// buffer, resource URIs and the open/acquire error taxonomy.
package video

// Source produces raw frames of a fixed geometry and pixel format
type Source interface {
	// Name returns a human-readable backend name
	Name() string

	// Descriptor reports the geometry and pixel format of every frame
	Descriptor() StreamDescriptor

	// GrabNext fills buf (at least Descriptor().SizeBytes long) with the next
	// frame. When wait is true it may block up to the capture timeout.
	// It returns false when no frame materialized; buf is then unspecified
	// and must not be displayed or recorded.
	GrabNext(buf []byte, wait bool) bool

	// Close releases the device, process or connection behind the source
	Close() error
}

// Ender is implemented by sources that can tell when no frame will ever
// arrive again, such as files
type Ender interface {
	EndOfStream() bool
}

// Sink accepts raw frames and persists or transmits them
type Sink interface {
	// Name returns a human-readable backend name
	Name() string

	// AddStream negotiates the stream the sink will carry. format is the
	// layout the sink stores or encodes, not necessarily the input layout.
	AddStream(width, height int, format PixelFormat) error

	// WriteFrame consumes buf synchronously; buf is reused once it returns
	WriteFrame(buf []byte, width, height int, format PixelFormat) error

	// Close flushes and finalizes the output
	Close() error
}
