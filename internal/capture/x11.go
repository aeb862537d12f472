package capture

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/composite"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// x11Source grabs the root window, a region of it, or one client window
type x11Source struct {
	conn             *xgb.Conn
	root             xproto.Window
	screen           *xproto.ScreenInfo
	compositeEnabled bool

	window xproto.Window // 0 for root captures
	region image.Rectangle
	desc   video.StreamDescriptor
	pace   *pacer
	wait   time.Duration
	img    *image.RGBA
	log    *zerolog.Logger
	mu     sync.Mutex
}

func openX11(u video.URI, opts Options) (video.Source, error) {
	log := logger.WithComponent("x11-capture")

	conn, err := connectX11(u.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	if screen.RootDepth != 24 && screen.RootDepth != 32 {
		conn.Close()
		return nil, fmt.Errorf("%w: unsupported root depth %d", video.ErrDeviceUnavailable, screen.RootDepth)
	}

	s := &x11Source{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		log:    log,
	}

	if err := s.configure(u, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// connectX11 connects to display, or $DISPLAY when it is empty
func connectX11(display string) (*xgb.Conn, error) {
	display = strings.TrimPrefix(display, "//")
	if display == "" {
		return xgb.NewConn()
	}
	return xgb.NewConnDisplay(display)
}

func (s *x11Source) configure(u video.URI, opts Options) error {
	format, err := u.Format("fmt", video.FormatRGB24)
	if err != nil {
		return err
	}
	fps, err := u.Float("fps", 30)
	if err != nil {
		return err
	}
	s.pace = newPacer(fps)
	s.wait = opts.Timeout

	var width, height int
	switch {
	case u.Has("window"):
		windows, err := listWindows(s.conn, s.root)
		if err != nil {
			return fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
		match, err := MatchWindow(windows, u.Get("window", ""))
		if err != nil {
			return fmt.Errorf("%w: %v", video.ErrDeviceUnavailable, err)
		}
		s.window = xproto.Window(match.ID)
		width, height = match.Geometry.Width, match.Geometry.Height

		if err := composite.Init(s.conn); err != nil {
			s.log.Warn().
				Err(err).
				Msg("Composite extension not available - obscured windows may capture incorrectly")
		} else {
			s.compositeEnabled = true
		}
		s.log.Info().
			Uint32("window_id", match.ID).
			Str("class", match.Class).
			Str("title", match.Title).
			Msg("Capturing window")

	case u.Has("region"):
		r, err := ParseRegion(u.Get("region", ""))
		if err != nil {
			return fmt.Errorf("%w: %v", video.ErrInvalidURI, err)
		}
		screenRect := image.Rect(0, 0, int(s.screen.WidthInPixels), int(s.screen.HeightInPixels))
		if !r.In(screenRect) {
			return fmt.Errorf("%w: region %v is outside the screen %v", video.ErrDeviceUnavailable, r, screenRect)
		}
		s.region = r
		width, height = r.Dx(), r.Dy()

	default:
		s.region = image.Rect(0, 0, int(s.screen.WidthInPixels), int(s.screen.HeightInPixels))
		width, height = s.region.Dx(), s.region.Dy()
	}

	s.desc = video.NewStreamDescriptor(width, height, format)
	if err := s.desc.Validate(); err != nil {
		return err
	}
	s.img = image.NewRGBA(image.Rect(0, 0, width, height))
	return nil
}

func (s *x11Source) Name() string {
	return "x11"
}

func (s *x11Source) Descriptor() video.StreamDescriptor {
	return s.desc
}

func (s *x11Source) GrabNext(buf []byte, wait bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pace.ready(wait, s.wait) {
		return false
	}

	var data []byte
	var err error
	if s.window != 0 {
		data, err = s.captureWindow()
	} else {
		data, err = s.captureRegion()
	}
	if err != nil {
		s.log.Debug().Err(err).Msg("Capture failed")
		return false
	}

	bgrxToRGBA(s.img, data)
	return video.FromImage(s.img, s.desc, buf) == nil
}

func (s *x11Source) Close() error {
	s.conn.Close()
	return nil
}

// captureRegion reads the configured region of the root window
func (s *x11Source) captureRegion() ([]byte, error) {
	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		xproto.Drawable(s.root),
		int16(s.region.Min.X), int16(s.region.Min.Y),
		uint16(s.region.Dx()), uint16(s.region.Dy()),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return reply.Data, nil
}

// captureWindow reads the window through a Composite pixmap when possible.
// The stream keeps the geometry found at open; a window that shrank below
// it fails the grab.
func (s *x11Source) captureWindow() ([]byte, error) {
	drawable := xproto.Drawable(s.window)

	if s.compositeEnabled {
		err := composite.RedirectWindowChecked(s.conn, s.window, composite.RedirectAutomatic).Check()
		if err == nil {
			defer composite.UnredirectWindow(s.conn, s.window, composite.RedirectAutomatic)

			if pixmap, err := xproto.NewPixmapId(s.conn); err == nil {
				if err := composite.NameWindowPixmapChecked(s.conn, s.window, pixmap).Check(); err == nil {
					drawable = xproto.Drawable(pixmap)
					defer xproto.FreePixmap(s.conn, pixmap)
				}
			}
		}
	}

	reply, err := xproto.GetImage(
		s.conn,
		xproto.ImageFormatZPixmap,
		drawable,
		0, 0,
		uint16(s.desc.Width), uint16(s.desc.Height),
		0xffffffff,
	).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get window image: %w", err)
	}
	return reply.Data, nil
}

// bgrxToRGBA converts 32 bpp ZPixmap data into img
func bgrxToRGBA(img *image.RGBA, data []byte) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if i+3 >= len(data) {
				return
			}
			row[x*4] = data[i+2]
			row[x*4+1] = data[i+1]
			row[x*4+2] = data[i]
			row[x*4+3] = 0xff
		}
	}
}

// ParseRegion parses an X11 style geometry WxH+X+Y (offsets optional)
func ParseRegion(s string) (image.Rectangle, error) {
	size, offsets, _ := strings.Cut(s, "+")
	w, h, err := video.ParseSize(size)
	if err != nil {
		return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
	}

	x, y := 0, 0
	if offsets != "" {
		xs, ys, ok := strings.Cut(offsets, "+")
		if !ok {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: want WxH+X+Y", s)
		}
		if x, err = strconv.Atoi(xs); err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		if y, err = strconv.Atoi(ys); err != nil {
			return image.Rectangle{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
	}
	return image.Rect(x, y, x+w, y+h), nil
}
