//go:build gocv

package display

import (
	"fmt"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"gocv.io/x/gocv"
)

// opencvSurface shows frames in a HighGUI window
type opencvSurface struct {
	window *gocv.Window
	canvas *canvas
	bgr    gocv.Mat
	quit   bool
	shown  bool
}

func openOpenCV(desc video.StreamDescriptor, opts Options) (Surface, error) {
	window := gocv.NewWindow(opts.Title)
	if window == nil {
		return nil, fmt.Errorf("failed to create opencv window")
	}
	window.ResizeWindow(desc.Width, desc.Height)

	logger.WithComponent("display").Info().
		Int("width", desc.Width).
		Int("height", desc.Height).
		Msg("OpenCV window created")

	return &opencvSurface{
		window: window,
		canvas: newCanvas(desc.Width, desc.Height),
		bgr:    gocv.NewMat(),
	}, nil
}

func (s *opencvSurface) Name() string {
	return "opencv"
}

func (s *opencvSurface) Upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error {
	return s.canvas.upload(buf, desc, layout)
}

func (s *opencvSurface) Clear() {
	s.canvas.clear()
}

func (s *opencvSurface) Render(overlay Overlay) {
	s.canvas.render(overlay)
}

// Present shows the back buffer and polls the keyboard for Escape or q
func (s *opencvSurface) Present() error {
	size := s.canvas.size()
	rgba, err := gocv.NewMatFromBytes(size.Y, size.X, gocv.MatTypeCV8UC4, s.canvas.back.Pix)
	if err != nil {
		return fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer rgba.Close()
	gocv.CvtColor(rgba, &s.bgr, gocv.ColorRGBAToBGR)

	s.window.IMShow(s.bgr)
	s.shown = true
	switch s.window.WaitKey(1) {
	case 27, 'q', 'Q':
		s.quit = true
	}
	return nil
}

func (s *opencvSurface) ShouldQuit() bool {
	if s.quit {
		return true
	}
	// The window vanishes when the user closes it
	return s.shown && s.window.GetWindowProperty(gocv.WindowPropertyVisible) < 1
}

func (s *opencvSurface) Close() error {
	s.bgr.Close()
	return s.window.Close()
}
