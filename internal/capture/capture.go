// Package capture opens frame sources by URI. Each scheme maps to one
// backend; all of them implement video.Source.
package capture

import (
	"fmt"
	"sort"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// Options apply to every source opened through Open
type Options struct {
	// Timeout bounds how long GrabNext(wait=true) may block
	Timeout time.Duration
	// FFmpegPath is the ffmpeg binary used by the file scheme
	FFmpegPath string
}

// DefaultOptions returns the options used when none are configured
func DefaultOptions() Options {
	return Options{
		Timeout:    2 * time.Second,
		FFmpegPath: "ffmpeg",
	}
}

// SchemeInfo documents one source scheme
type SchemeInfo struct {
	Scheme      string
	Example     string
	Description string
}

var schemes = []SchemeInfo{
	{"test", "test:[size=640x480,fmt=RGB24,fps=30]//bars", "synthetic test pattern (bars, gradient, checker, solid)"},
	{"convert", "convert:[fmt=RGB24]//v4l:///dev/video0", "converts the pixel format of a nested source"},
	{"v4l", "v4l:[size=640x480,fmt=YUYV]///dev/video0", "Video4Linux2 capture device"},
	{"file", "file:[realtime=1]///home/user/video/movie.avi", "media file decoded by ffmpeg"},
	{"files", "files:///home/user/seq/foo%03d.jpeg", "numbered image sequence or glob"},
	{"gst", "gst://videotestsrc pattern=ball", "GStreamer launch line ending in an appsink"},
	{"pipewire", "pipewire:[types=monitor]//", "Wayland screen cast through the desktop portal"},
	{"x11", "x11:[region=1280x720+0+0,window=firefox]//:0", "X11 root window, region or window capture"},
	{"screen", "screen://0", "whole display capture by index"},
	{"mjpeg", "mjpeg://http://127.0.0.1/?action=stream", "multipart MJPEG over HTTP"},
	{"opencv", "opencv://0", "OpenCV VideoCapture device or file (gocv builds only)"},
	{"dc1394", "dc1394:[fps=30,dma=10,size=640x480,iso=400]//0", "IEEE 1394 camera (not supported in this build)"},
}

// Schemes lists the supported source schemes sorted by name
func Schemes() []SchemeInfo {
	out := append([]SchemeInfo(nil), schemes...)
	sort.Slice(out, func(i, j int) bool { return out[i].Scheme < out[j].Scheme })
	return out
}

// Open parses raw and opens the matching source. Every failure is returned
// as a *video.OpenError.
func Open(raw string, opts Options) (video.Source, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = DefaultOptions().FFmpegPath
	}

	log := logger.WithComponent("capture")

	u, err := video.ParseURI(raw)
	if err != nil {
		return nil, video.NewOpenError(video.RoleSource, raw, err)
	}

	src, err := open(u, opts)
	if err != nil {
		log.Debug().Err(err).Str("uri", raw).Msg("Failed to open source")
		return nil, video.NewOpenError(video.RoleSource, raw, err)
	}

	log.Info().
		Str("uri", raw).
		Str("backend", src.Name()).
		Str("stream", src.Descriptor().String()).
		Msg("Source opened")

	return src, nil
}

func open(u video.URI, opts Options) (video.Source, error) {
	switch u.Scheme {
	case "test":
		return openPattern(u, opts)
	case "convert":
		return openConvert(u, opts)
	case "v4l":
		return openV4L(u, opts)
	case "file":
		return openFile(u, opts)
	case "files":
		return openFiles(u, opts)
	case "gst":
		return openGst(u, opts)
	case "pipewire":
		return openPipeWire(u, opts)
	case "x11":
		return openX11(u, opts)
	case "screen":
		return openScreen(u, opts)
	case "mjpeg":
		return openMJPEG(u, opts)
	case "opencv":
		return openOpenCV(u, opts)
	}
	return nil, fmt.Errorf("%w: %q", video.ErrUnknownScheme, u.Scheme)
}
