package capture

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// maxSequence bounds printf-style sequence expansion
const maxSequence = 1 << 20

// filesSource plays back a sequence of still images
type filesSource struct {
	paths []string
	desc  video.StreamDescriptor
	pace  *pacer
	wait  time.Duration
	loop  bool
	next  int
	img   *image.RGBA
	log   *zerolog.Logger
}

func openFiles(u video.URI, opts Options) (video.Source, error) {
	start, err := u.Int("start", -1)
	if err != nil {
		return nil, err
	}
	paths, err := expandSequence(u.Path, start)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no images match %q", video.ErrDeviceUnavailable, u.Path)
	}

	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}
	fps, err := u.Float("fps", 0)
	if err != nil {
		return nil, err
	}
	loop, err := u.Bool("loop", false)
	if err != nil {
		return nil, err
	}

	first, err := decodeImage(paths[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}
	b := first.Bounds()

	return &filesSource{
		paths: paths,
		desc:  video.NewStreamDescriptor(b.Dx(), b.Dy(), format),
		pace:  newPacer(fps),
		wait:  opts.Timeout,
		loop:  loop,
		img:   image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy())),
		log:   logger.WithComponent("files"),
	}, nil
}

// expandSequence resolves a glob, a printf pattern such as foo%03d.png or a
// single file name into an ordered list of paths. A negative start probes
// for a first index of 0 and then 1.
func expandSequence(pattern string, start int) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: files uri has no path", video.ErrInvalidURI)
	}

	if strings.ContainsAny(pattern, "*?[") {
		paths, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrInvalidURI, err)
		}
		sort.Strings(paths)
		return paths, nil
	}

	if !strings.Contains(pattern, "%") {
		if _, err := os.Stat(pattern); err != nil {
			return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
		return []string{pattern}, nil
	}

	exists := func(i int) bool {
		_, err := os.Stat(fmt.Sprintf(pattern, i))
		return err == nil
	}
	if start < 0 {
		start = 0
		if !exists(0) {
			start = 1
		}
	}

	var paths []string
	for i := start; i < start+maxSequence && exists(i); i++ {
		paths = append(paths, fmt.Sprintf(pattern, i))
	}
	return paths, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (s *filesSource) Name() string {
	return "files"
}

func (s *filesSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *filesSource) GrabNext(buf []byte, wait bool) bool {
	if s.next >= len(s.paths) {
		if !s.loop {
			return false
		}
		s.next = 0
	}
	if !s.pace.ready(wait, s.wait) {
		return false
	}

	path := s.paths[s.next]
	s.next++

	img, err := decodeImage(path)
	if err != nil {
		s.log.Warn().Err(err).Msg("Skipping image")
		return false
	}

	var src image.Image = img
	if img.Bounds().Dx() != s.desc.Width || img.Bounds().Dy() != s.desc.Height {
		draw.ApproxBiLinear.Scale(s.img, s.img.Bounds(), img, img.Bounds(), draw.Src, nil)
		src = s.img
	}
	if err := video.FromImage(src, s.desc, buf); err != nil {
		s.log.Warn().Err(err).Str("path", path).Msg("Skipping image")
		return false
	}
	return true
}

func (s *filesSource) EndOfStream() bool {
	return !s.loop && s.next >= len(s.paths)
}

func (s *filesSource) Close() error {
	return nil
}
