package capture

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog"
)

// screenSource captures a whole display, or a region of it
type screenSource struct {
	bounds image.Rectangle
	desc   video.StreamDescriptor
	pace   *pacer
	wait   time.Duration
	log    *zerolog.Logger
}

func openScreen(u video.URI, opts Options) (video.Source, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, fmt.Errorf("%w: no active displays", video.ErrDeviceUnavailable)
	}

	index := 0
	if p := strings.Trim(u.Path, "/"); p != "" {
		i, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: display index %q", video.ErrInvalidURI, p)
		}
		index = i
	}
	if index < 0 || index >= n {
		return nil, fmt.Errorf("%w: display %d of %d", video.ErrDeviceUnavailable, index, n)
	}

	bounds := screenshot.GetDisplayBounds(index)
	if u.Has("region") {
		r, err := ParseRegion(u.Get("region", ""))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrInvalidURI, err)
		}
		r = r.Add(bounds.Min)
		if !r.In(bounds) {
			return nil, fmt.Errorf("%w: region outside display %d", video.ErrDeviceUnavailable, index)
		}
		bounds = r
	}

	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}
	fps, err := u.Float("fps", 15)
	if err != nil {
		return nil, err
	}

	s := &screenSource{
		bounds: bounds,
		desc:   video.NewStreamDescriptor(bounds.Dx(), bounds.Dy(), format),
		pace:   newPacer(fps),
		wait:   opts.Timeout,
		log:    logger.WithComponent("screen"),
	}
	s.log.Info().
		Int("display", index).
		Str("bounds", bounds.String()).
		Msg("Capturing display")
	return s, nil
}

func (s *screenSource) Name() string {
	return "screen"
}

func (s *screenSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *screenSource) GrabNext(buf []byte, wait bool) bool {
	if !s.pace.ready(wait, s.wait) {
		return false
	}
	img, err := screenshot.CaptureRect(s.bounds)
	if err != nil {
		s.log.Debug().Err(err).Msg("Capture failed")
		return false
	}
	return video.FromImage(img, s.desc, buf) == nil
}

func (s *screenSource) Close() error {
	return nil
}
