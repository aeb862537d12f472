// Package output opens frame sinks by URI. Each scheme maps to one backend;
// all of them implement video.Sink:
// - ffmpeg subprocess encoding
// - Motion-JPEG AVI files
// - MJPEG over HTTP
// - websocket push
// - GStreamer pipelines
// - still image sequences
package output

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"io"
	"sort"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// Options apply to every sink opened through Open
type Options struct {
	// FFmpegPath is the ffmpeg binary used by the ffmpeg scheme
	FFmpegPath string
	// Timeout bounds network handshakes and encoder shutdown
	Timeout time.Duration
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		FFmpegPath: "ffmpeg",
		Timeout:    5 * time.Second,
	}
}

// SchemeInfo documents one sink scheme
type SchemeInfo struct {
	Scheme      string
	Example     string
	Description string
}

var schemes = []SchemeInfo{
	{"ffmpeg", "ffmpeg:[fps=30,bps=8388608]//video.avi", "ffmpeg subprocess fed with raw frames"},
	{"avi", "avi:[fps=30,quality=90]//video.avi", "Motion-JPEG AVI written without external tools"},
	{"http", "http:[addr=:8090]//stream", "MJPEG multipart stream served over HTTP"},
	{"ws", "ws://127.0.0.1:9000/ingest", "JPEG frames pushed as websocket binary messages"},
	{"gst", "gst://x264enc ! mp4mux ! filesink location=out.mp4", "GStreamer launch line fed by an appsrc"},
	{"files", "files:[fmt=png]///tmp/out/frame%05d.png", "numbered still images"},
	{"null", "null://", "discards every frame"},
}

// Schemes lists the supported sink schemes sorted by name
func Schemes() []SchemeInfo {
	out := append([]SchemeInfo(nil), schemes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

// Open parses raw and opens the matching sink. Every failure is returned as
// a *video.OpenError.
func Open(raw string, opts Options) (video.Sink, error) {
	def := DefaultOptions()
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = def.FFmpegPath
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}

	u, err := video.ParseURI(raw)
	if err != nil {
		return nil, video.NewOpenError(video.RoleSink, raw, err)
	}

	sink, err := open(u, opts)
	if err != nil {
		logger.WithComponent("output").Debug().Err(err).Str("uri", raw).Msg("Failed to open sink")
		return nil, video.NewOpenError(video.RoleSink, raw, err)
	}

	logger.WithComponent("output").Info().
		Str("uri", raw).
		Str("backend", sink.Name()).
		Msg("Sink opened")

	return sink, nil
}

func open(u video.URI, opts Options) (video.Sink, error) {
	switch u.Scheme {
	case "ffmpeg":
		return openFFmpeg(u, opts, nil)
	case "avi":
		return openAVI(u)
	case "http":
		return openHTTP(u)
	case "ws", "wss":
		return openWebSocket(u, opts)
	case "gst":
		return openGst(u)
	case "files":
		return openFiles(u)
	case "null":
		return &nullSink{}, nil
	}
	return nil, fmt.Errorf("%w: %q", video.ErrUnknownScheme, u.Scheme)
}

// stream tracks the geometry a sink was started with. The stored format is
// fixed by AddStream, the input format by the first written frame.
type stream struct {
	width, height int
	format        video.PixelFormat
	input         video.PixelFormat
	added         bool
	frames        uint64
}

func (s *stream) add(width, height int, format video.PixelFormat) error {
	if s.added {
		return fmt.Errorf("stream already added")
	}
	desc := video.NewStreamDescriptor(width, height, format)
	if err := desc.Validate(); err != nil {
		return err
	}
	s.width, s.height, s.format = width, height, format
	s.added = true
	return nil
}

// accept checks a frame against the stream and reports whether it is the
// first one
func (s *stream) accept(buf []byte, width, height int, format video.PixelFormat) (bool, error) {
	if !s.added {
		return false, fmt.Errorf("no stream added")
	}
	if width != s.width || height != s.height {
		return false, fmt.Errorf("%w: frame %dx%d, stream %dx%d",
			video.ErrFormatMismatch, width, height, s.width, s.height)
	}
	first := s.frames == 0
	if first {
		s.input = format
	} else if format != s.input {
		return false, fmt.Errorf("%w: frame format %s, stream input %s",
			video.ErrFormatMismatch, format, s.input)
	}
	in := s.inputDesc()
	if len(buf) < in.SizeBytes {
		return false, fmt.Errorf("short frame: %d of %d bytes", len(buf), in.SizeBytes)
	}
	return first, nil
}

func (s *stream) inputDesc() video.StreamDescriptor {
	return video.NewStreamDescriptor(s.width, s.height, s.input)
}

func (s *stream) storedDesc() video.StreamDescriptor {
	return video.NewStreamDescriptor(s.width, s.height, s.format)
}

// frameImage returns the frame as an image in the stored color model: gray
// when the stream stores GRAY8, the input's own model otherwise
func frameImage(buf []byte, in video.StreamDescriptor, stored video.PixelFormat) (image.Image, error) {
	img, err := video.ToImage(buf, in)
	if err != nil {
		return nil, err
	}
	if stored == video.FormatGray8 && in.Format != video.FormatGray8 {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, image.Point{}, draw.Src)
		return gray, nil
	}
	return img, nil
}

// encodeJPEG writes one frame as a baseline JPEG
func encodeJPEG(w io.Writer, buf []byte, in video.StreamDescriptor, stored video.PixelFormat, quality int) error {
	img, err := frameImage(buf, in, stored)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(w, img, &jpeg.Options{Quality: quality}); err != nil {
		return fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return nil
}

// EncodeJPEG encodes a raw frame, used by the preview endpoint
func EncodeJPEG(buf []byte, desc video.StreamDescriptor, quality int) ([]byte, error) {
	var b bytes.Buffer
	if err := encodeJPEG(&b, buf, desc, desc.Format, quality); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func jpegQuality(u video.URI) (int, error) {
	q, err := u.Int("quality", 90)
	if err != nil {
		return 0, err
	}
	if q < 1 || q > 100 {
		return 0, fmt.Errorf("%w: quality %d out of range 1-100", video.ErrInvalidURI, q)
	}
	return q, nil
}

// nullSink discards frames after checking them
type nullSink struct {
	stream
}

func (s *nullSink) Name() string {
	return "null"
}

func (s *nullSink) AddStream(width, height int, format video.PixelFormat) error {
	return s.add(width, height, format)
}

func (s *nullSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	if _, err := s.accept(buf, width, height, format); err != nil {
		return err
	}
	s.frames++
	return nil
}

func (s *nullSink) Close() error {
	return nil
}
