// Package display shows the frames of a recording in a window. Backends share
// a software canvas that scales the last uploaded frame into an
// aspect-preserving viewport.
package display

import (
	"fmt"
	"image"
	"image/draw"
	"sort"

	"github.com/bryanchriswhite/simplerecord/internal/video"
	xdraw "golang.org/x/image/draw"
)

// Overlay draws on top of the rendered frame
type Overlay interface {
	Draw(dst *image.RGBA, viewport image.Rectangle)
}

// Surface is the window the capture loop renders into
type Surface interface {
	// Name returns the backend name
	Name() string

	// Upload stores a frame as the texture drawn by Render
	Upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error

	// Clear fills the back buffer with black
	Clear()

	// Render draws the last uploaded texture into the viewport, then the
	// overlay when it is not nil
	Render(overlay Overlay)

	// Present shows the back buffer and processes window events
	Present() error

	// ShouldQuit reports whether the user asked to stop
	ShouldQuit() bool

	// Close destroys the window
	Close() error
}

// Options configure a surface
type Options struct {
	Title string
	// Display is the X display name, $DISPLAY when empty
	Display string
}

// Backends lists the known backend names
func Backends() []string {
	names := []string{"none", "x11", "opencv"}
	sort.Strings(names)
	return names
}

// Open creates a surface of the named backend sized to desc
func Open(backend string, desc video.StreamDescriptor, opts Options) (Surface, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	if opts.Title == "" {
		opts.Title = "SimpleRecord"
	}
	switch backend {
	case "none", "":
		return NewHeadless(desc.Width, desc.Height), nil
	case "x11":
		s, err := openX11(desc, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "opencv":
		return openOpenCV(desc, opts)
	}
	return nil, fmt.Errorf("unknown display backend %q", backend)
}

// Viewport returns the largest rectangle with the aspect ratio of src that
// fits centered in dst
func Viewport(src, dst image.Point) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 || dst.X <= 0 || dst.Y <= 0 {
		return image.Rectangle{}
	}
	w, h := dst.X, dst.X*src.Y/src.X
	if h > dst.Y {
		w, h = dst.Y*src.X/src.Y, dst.Y
	}
	x, y := (dst.X-w)/2, (dst.Y-h)/2
	return image.Rect(x, y, x+w, y+h)
}

// canvas is the software back buffer shared by all backends
type canvas struct {
	back     *image.RGBA
	texture  *image.RGBA
	layout   video.TextureLayout
	uploaded bool
}

func newCanvas(width, height int) *canvas {
	return &canvas{back: image.NewRGBA(image.Rect(0, 0, width, height))}
}

func (c *canvas) size() image.Point {
	return c.back.Bounds().Size()
}

func (c *canvas) resize(width, height int) {
	if width <= 0 || height <= 0 || c.size() == image.Pt(width, height) {
		return
	}
	c.back = image.NewRGBA(image.Rect(0, 0, width, height))
}

func (c *canvas) upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error {
	if layout != desc.Format.Layout() {
		return fmt.Errorf("texture layout %s does not match %s", layout, desc.Format)
	}
	tex, err := video.ToRGBA(buf, desc, c.texture)
	if err != nil {
		return err
	}
	c.texture = tex
	c.layout = layout
	c.uploaded = true
	return nil
}

func (c *canvas) clear() {
	draw.Draw(c.back, c.back.Bounds(), image.Black, image.Point{}, draw.Src)
}

func (c *canvas) render(overlay Overlay) image.Rectangle {
	if !c.uploaded {
		if overlay != nil {
			overlay.Draw(c.back, c.back.Bounds())
		}
		return image.Rectangle{}
	}
	vp := Viewport(c.texture.Bounds().Size(), c.size())
	if vp.Size() == c.texture.Bounds().Size() {
		draw.Draw(c.back, vp, c.texture, image.Point{}, draw.Src)
	} else {
		xdraw.ApproxBiLinear.Scale(c.back, vp, c.texture, c.texture.Bounds(), draw.Src, nil)
	}
	if overlay != nil {
		overlay.Draw(c.back, vp)
	}
	return vp
}
