package output

import (
	"fmt"
	"strings"

	"github.com/bryanchriswhite/simplerecord/internal/gstreamer"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// gstSink feeds a GStreamer launch line through an appsrc. The pipeline is
// built with the first frame, once the input pixel format is known.
type gstSink struct {
	stream
	launch string
	fps    int
	src    *gstreamer.AppSrc
}

func openGst(u video.URI) (*gstSink, error) {
	launch := strings.TrimSpace(u.Path)
	if launch == "" {
		return nil, fmt.Errorf("%w: gst uri has no pipeline", video.ErrInvalidURI)
	}
	fps, err := u.Int("fps", 30)
	if err != nil {
		return nil, err
	}
	return &gstSink{launch: launch, fps: fps}, nil
}

func (s *gstSink) Name() string {
	return "gst"
}

func (s *gstSink) AddStream(width, height int, format video.PixelFormat) error {
	if _, err := gstreamer.CapsFormat(format); err != nil {
		return err
	}
	return s.add(width, height, format)
}

func (s *gstSink) WriteFrame(buf []byte, width, height int, format video.PixelFormat) error {
	first, err := s.accept(buf, width, height, format)
	if err != nil {
		return err
	}
	if first {
		caps, err := gstreamer.CapsFormat(s.format)
		if err != nil {
			return err
		}
		// Convert to the stored format before the user's elements
		launch := fmt.Sprintf("video/x-raw,format=%s ! %s", caps, s.launch)
		if s.src, err = gstreamer.NewAppSrc(launch, s.inputDesc(), s.fps); err != nil {
			return err
		}
	}
	if err := s.src.Push(buf); err != nil {
		return err
	}
	s.frames++
	return nil
}

// Close sends EOS so muxers can finalize their files
func (s *gstSink) Close() error {
	if s.src == nil {
		return nil
	}
	return s.src.Close()
}
