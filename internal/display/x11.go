package display

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync/atomic"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// Keysyms that close the window
const (
	keysymEscape = 0xff1b
	keysymQ      = 0x0071
	keysymUpperQ = 0x0051
)

// x11Surface is a plain X11 window updated with PutImage
type x11Surface struct {
	conn   *xgb.Conn
	screen *xproto.ScreenInfo
	window xproto.Window
	gc     xproto.Gcontext
	canvas *canvas

	bytesPerPixel int
	scanlinePad   int
	maxRequest    int
	data          []byte

	wmProtocols xproto.Atom
	wmDelete    xproto.Atom
	quitKeys    map[xproto.Keycode]bool
	quit        atomic.Bool
	log         *zerolog.Logger
}

func openX11(desc video.StreamDescriptor, opts Options) (*x11Surface, error) {
	var conn *xgb.Conn
	var err error
	if opts.Display == "" {
		conn, err = xgb.NewConn()
	} else {
		conn, err = xgb.NewConnDisplay(opts.Display)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	s := &x11Surface{
		conn:       conn,
		screen:     screen,
		maxRequest: int(setup.MaximumRequestLength) * 4,
		log:        logger.WithComponent("display"),
	}

	for _, format := range setup.PixmapFormats {
		if format.Depth == screen.RootDepth {
			s.bytesPerPixel = int(format.BitsPerPixel) / 8
			s.scanlinePad = int(format.ScanlinePad) / 8
			break
		}
	}
	if s.bytesPerPixel != 3 && s.bytesPerPixel != 4 {
		conn.Close()
		return nil, fmt.Errorf("unsupported root depth %d", screen.RootDepth)
	}

	// Frames larger than the screen get a window that fits it
	size := image.Pt(desc.Width, desc.Height)
	screenSize := image.Pt(int(screen.WidthInPixels), int(screen.HeightInPixels))
	if size.X > screenSize.X || size.Y > screenSize.Y {
		size = Viewport(size, screenSize).Size()
	}
	s.canvas = newCanvas(size.X, size.Y)

	if err := s.createWindow(size, opts.Title); err != nil {
		conn.Close()
		return nil, err
	}
	s.loadQuitKeys(setup)

	s.log.Info().
		Int("width", size.X).
		Int("height", size.Y).
		Uint32("window_id", uint32(s.window)).
		Msg("Display window created")

	return s, nil
}

func (s *x11Surface) createWindow(size image.Point, title string) error {
	windowID, err := xproto.NewWindowId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create window ID: %w", err)
	}
	s.window = windowID

	mask := uint32(xproto.CwBackPixel | xproto.CwEventMask)
	values := []uint32{
		0x000000,
		xproto.EventMaskExposure | xproto.EventMaskStructureNotify | xproto.EventMaskKeyPress,
	}
	err = xproto.CreateWindowChecked(
		s.conn,
		s.screen.RootDepth,
		s.window,
		s.screen.Root,
		0, 0,
		uint16(size.X), uint16(size.Y),
		0,
		xproto.WindowClassInputOutput,
		s.screen.RootVisual,
		mask,
		values,
	).Check()
	if err != nil {
		return fmt.Errorf("failed to create window: %w", err)
	}

	if err := s.setWindowTitle(title); err != nil {
		s.log.Warn().Err(err).Msg("Failed to set window title")
	}
	if err := s.setWindowClass("simplerecord", "SimpleRecord"); err != nil {
		s.log.Warn().Err(err).Msg("Failed to set window class")
	}
	if err := s.setDeleteProtocol(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to register WM_DELETE_WINDOW")
	}

	if err := xproto.MapWindowChecked(s.conn, s.window).Check(); err != nil {
		return fmt.Errorf("failed to map window: %w", err)
	}

	gc, err := xproto.NewGcontextId(s.conn)
	if err != nil {
		return fmt.Errorf("failed to create graphics context: %w", err)
	}
	if err := xproto.CreateGCChecked(s.conn, gc, xproto.Drawable(s.window), 0, nil).Check(); err != nil {
		return fmt.Errorf("failed to create GC: %w", err)
	}
	s.gc = gc
	return nil
}

func (s *x11Surface) Name() string {
	return "x11"
}

func (s *x11Surface) Upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error {
	return s.canvas.upload(buf, desc, layout)
}

func (s *x11Surface) Clear() {
	s.canvas.clear()
}

func (s *x11Surface) Render(overlay Overlay) {
	s.canvas.render(overlay)
}

// Present copies the back buffer to the window and drains pending events
func (s *x11Surface) Present() error {
	if err := s.putImage(s.canvas.back); err != nil {
		return err
	}
	s.processEvents()
	return nil
}

func (s *x11Surface) ShouldQuit() bool {
	return s.quit.Load()
}

func (s *x11Surface) Close() error {
	if s.gc != 0 {
		xproto.FreeGC(s.conn, s.gc)
	}
	if s.window != 0 {
		xproto.DestroyWindow(s.conn, s.window)
		s.conn.Sync()
	}
	s.conn.Close()
	s.log.Info().Msg("Display window closed")
	return nil
}

// putImage sends img in bands small enough for the server's request limit
func (s *x11Surface) putImage(img *image.RGBA) error {
	size := img.Bounds().Size()
	stride := rowStride(size.X, s.bytesPerPixel, s.scanlinePad)
	if need := stride * size.Y; len(s.data) != need {
		s.data = make([]byte, need)
	}
	if err := packPixels(s.data, img, s.bytesPerPixel, stride, s.screen.RootDepth); err != nil {
		return err
	}

	// PutImage carries a 24 byte header
	rows := (s.maxRequest - 24) / stride
	if rows < 1 {
		return fmt.Errorf("row of %d bytes exceeds the X request limit", stride)
	}
	for y := 0; y < size.Y; y += rows {
		n := rows
		if y+n > size.Y {
			n = size.Y - y
		}
		xproto.PutImage(
			s.conn,
			xproto.ImageFormatZPixmap,
			xproto.Drawable(s.window),
			s.gc,
			uint16(size.X), uint16(n),
			0, int16(y),
			0,
			s.screen.RootDepth,
			s.data[y*stride:(y+n)*stride],
		)
	}
	return nil
}

func (s *x11Surface) processEvents() {
	for {
		ev, xerr := s.conn.PollForEvent()
		if ev == nil && xerr == nil {
			return
		}
		if xerr != nil {
			s.log.Debug().Str("error", xerr.Error()).Msg("X error")
			continue
		}

		switch e := ev.(type) {
		case xproto.ClientMessageEvent:
			if e.Type == s.wmProtocols && len(e.Data.Data32) > 0 && xproto.Atom(e.Data.Data32[0]) == s.wmDelete {
				s.log.Info().Msg("Window closed")
				s.quit.Store(true)
			}
		case xproto.KeyPressEvent:
			if s.quitKeys[e.Detail] {
				s.log.Info().Msg("Quit key pressed")
				s.quit.Store(true)
			}
		case xproto.ConfigureNotifyEvent:
			s.canvas.resize(int(e.Width), int(e.Height))
		case xproto.DestroyNotifyEvent:
			s.quit.Store(true)
		}
	}
}

// loadQuitKeys finds the keycodes mapped to Escape and q
func (s *x11Surface) loadQuitKeys(setup *xproto.SetupInfo) {
	s.quitKeys = map[xproto.Keycode]bool{}
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(s.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to read keyboard mapping")
		return
	}
	per := int(reply.KeysymsPerKeycode)
	for i := 0; i < int(count) && (i+1)*per <= len(reply.Keysyms); i++ {
		switch reply.Keysyms[i*per] {
		case keysymEscape, keysymQ, keysymUpperQ:
			s.quitKeys[setup.MinKeycode+xproto.Keycode(i)] = true
		}
	}
}

func (s *x11Surface) setWindowTitle(title string) error {
	nameAtom, err := s.getAtom("_NET_WM_NAME")
	if err != nil {
		return err
	}
	utf8Atom, err := s.getAtom("UTF8_STRING")
	if err != nil {
		return err
	}
	if err := xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		nameAtom, utf8Atom, 8, uint32(len(title)), []byte(title)).Check(); err != nil {
		return err
	}
	return xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		xproto.AtomWmName, xproto.AtomString, 8, uint32(len(title)), []byte(title)).Check()
}

// setWindowClass sets WM_CLASS as instance\0class\0
func (s *x11Surface) setWindowClass(instance, class string) error {
	classStr := instance + "\x00" + class + "\x00"
	return xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		xproto.AtomWmClass, xproto.AtomString, 8, uint32(len(classStr)), []byte(classStr)).Check()
}

// setDeleteProtocol asks the window manager for a ClientMessage instead of
// killing the connection when the window is closed
func (s *x11Surface) setDeleteProtocol() error {
	var err error
	if s.wmProtocols, err = s.getAtom("WM_PROTOCOLS"); err != nil {
		return err
	}
	if s.wmDelete, err = s.getAtom("WM_DELETE_WINDOW"); err != nil {
		return err
	}
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, uint32(s.wmDelete))
	return xproto.ChangePropertyChecked(s.conn, xproto.PropModeReplace, s.window,
		s.wmProtocols, xproto.AtomAtom, 32, 1, data).Check()
}

func (s *x11Surface) getAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(s.conn, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Atom, nil
}

// rowStride pads a row of width pixels to the scanline pad
func rowStride(width, bytesPerPixel, padBytes int) int {
	unpadded := width * bytesPerPixel
	if padBytes <= 1 {
		return unpadded
	}
	return (unpadded + padBytes - 1) / padBytes * padBytes
}

// packPixels converts RGBA into the BGR(x) ZPixmap layout of the screen
func packPixels(dst []byte, img *image.RGBA, bytesPerPixel, stride int, depth byte) error {
	size := img.Bounds().Size()
	if len(dst) < stride*size.Y {
		return fmt.Errorf("pixmap buffer holds %d bytes, need %d", len(dst), stride*size.Y)
	}
	for y := 0; y < size.Y; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+size.X*4]
		row := dst[y*stride:]
		for x := 0; x < size.X; x++ {
			si, di := x*4, x*bytesPerPixel
			row[di] = src[si+2]
			row[di+1] = src[si+1]
			row[di+2] = src[si]
			if bytesPerPixel == 4 {
				if depth == 32 {
					row[di+3] = src[si+3]
				} else {
					row[di+3] = 0
				}
			}
		}
	}
	return nil
}
