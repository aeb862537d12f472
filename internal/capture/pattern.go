package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strconv"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/video"
)

var barColors = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
	{16, 16, 16, 255},
}

// patternSource renders synthetic frames, used for tests and demos
type patternSource struct {
	desc   video.StreamDescriptor
	kind   string
	solid  color.RGBA
	img    *image.RGBA
	pace   *pacer
	wait   time.Duration
	limit  int // frames before end of stream, 0 for unlimited
	drop   int // every drop-th grab fails
	frame  int
	grabs  int
	closed bool
}

func openPattern(u video.URI, opts Options) (video.Source, error) {
	w, h, ok, err := u.Size("size")
	if err != nil {
		return nil, err
	}
	if !ok {
		w, h = 640, 480
	}
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return nil, err
	}
	fps, err := u.Float("fps", 30)
	if err != nil {
		return nil, err
	}
	limit, err := u.Int("frames", 0)
	if err != nil {
		return nil, err
	}
	drop, err := u.Int("drop", 0)
	if err != nil {
		return nil, err
	}

	kind := u.Path
	if kind == "" {
		kind = "bars"
	}
	s := &patternSource{
		desc:  video.NewStreamDescriptor(w, h, format),
		kind:  kind,
		solid: color.RGBA{128, 128, 128, 255},
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		pace:  newPacer(fps),
		wait:  opts.Timeout,
		limit: limit,
		drop:  drop,
	}
	if err := s.desc.Validate(); err != nil {
		return nil, err
	}

	switch kind {
	case "bars", "gradient", "checker":
	case "solid":
		if c := u.Get("color", ""); c != "" {
			if s.solid, err = parseHexColor(c); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("%w: unknown test pattern %q", video.ErrDeviceUnavailable, kind)
	}
	return s, nil
}

func (s *patternSource) Name() string {
	return "test"
}

func (s *patternSource) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *patternSource) GrabNext(buf []byte, wait bool) bool {
	if s.closed || s.EndOfStream() {
		return false
	}
	s.grabs++
	if s.drop > 0 && s.grabs%s.drop == 0 {
		return false
	}
	if !s.pace.ready(wait, s.wait) {
		return false
	}

	s.render()
	if err := video.FromImage(s.img, s.desc, buf); err != nil {
		return false
	}
	s.frame++
	return true
}

func (s *patternSource) EndOfStream() bool {
	return s.limit > 0 && s.frame >= s.limit
}

func (s *patternSource) Close() error {
	s.closed = true
	return nil
}

func (s *patternSource) render() {
	w, h := s.desc.Width, s.desc.Height
	switch s.kind {
	case "bars":
		shift := s.frame % w
		for x := 0; x < w; x++ {
			c := barColors[((x+shift)%w)*len(barColors)/w]
			for y := 0; y < h; y++ {
				s.img.SetRGBA(x, y, c)
			}
		}
	case "gradient":
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				s.img.SetRGBA(x, y, color.RGBA{
					R: uint8(x * 255 / w),
					G: uint8(y * 255 / h),
					B: uint8(s.frame),
					A: 255,
				})
			}
		}
	case "checker":
		const cell = 16
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.RGBA{32, 32, 32, 255}
				if ((x+s.frame)/cell+y/cell)%2 == 0 {
					c = color.RGBA{224, 224, 224, 255}
				}
				s.img.SetRGBA(x, y, c)
			}
		}
	case "solid":
		draw.Draw(s.img, s.img.Bounds(), &image.Uniform{C: s.solid}, image.Point{}, draw.Src)
	}
}

// parseHexColor parses rrggbb with an optional leading #
func parseHexColor(s string) (color.RGBA, error) {
	if len(s) > 0 && s[0] == '#' {
		s = s[1:]
	}
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}, nil
}
