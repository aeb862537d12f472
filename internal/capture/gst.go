package capture

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/simplerecord/internal/capture/pipewire"
	"github.com/bryanchriswhite/simplerecord/internal/gstreamer"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// gstSource pulls frames from a user supplied GStreamer launch line
type gstSource struct {
	*gstreamer.AppSink
}

func openGst(u video.URI, opts Options) (video.Source, error) {
	launch := strings.TrimSpace(u.Path)
	if launch == "" {
		return nil, fmt.Errorf("%w: gst uri has no pipeline", video.ErrInvalidURI)
	}
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}

	sink, err := gstreamer.NewAppSink(launch, format, opts.Timeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}
	return &gstSource{AppSink: sink}, nil
}

func (s *gstSource) Name() string {
	return "gst"
}

func (s *gstSource) GrabNext(buf []byte, wait bool) bool {
	return s.Pull(buf, wait)
}

func openPipeWire(u video.URI, opts Options) (video.Source, error) {
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}

	share := pipewire.DefaultShareOptions()
	switch u.Get("types", "monitor") {
	case "monitor":
	case "window":
		share.SourceTypes = pipewire.SourceTypeWindow
	case "any":
		share.SourceTypes = pipewire.SourceTypeMonitor | pipewire.SourceTypeWindow
	default:
		return nil, fmt.Errorf("%w: types must be monitor, window or any", video.ErrInvalidURI)
	}
	if hide, err := u.Bool("hide_cursor", false); err != nil {
		return nil, err
	} else if hide {
		share.CursorMode = pipewire.CursorModeHidden
	}

	// The portal dialog waits for the user, the pipeline only needs the
	// normal capture timeout once the stream exists
	return pipewire.Open(share, format, opts.Timeout)
}
