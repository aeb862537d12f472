// Package overlay draws the recording HUD on top of the displayed frame.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget is one element of the HUD
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget inside viewport, the area the frame occupies
	Render(img *image.RGBA, viewport image.Rectangle) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// Anchor names the viewport corner a widget is placed against
type Anchor int

const (
	TopLeft Anchor = iota
	TopRight
	BottomLeft
	BottomRight
)

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	anchor  Anchor
	margin  int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, anchor Anchor, margin int, opacity float64) *BaseWidget {
	w := &BaseWidget{
		id:      id,
		enabled: true,
		anchor:  anchor,
		margin:  margin,
	}
	w.SetOpacity(opacity)
	return w
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// GetOpacity returns the widget's opacity
func (w *BaseWidget) GetOpacity() float64 {
	return w.opacity
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	if opacity < 0.0 {
		opacity = 0.0
	}
	if opacity > 1.0 {
		opacity = 1.0
	}
	w.opacity = opacity
}

// Place returns the top-left corner of a size box anchored in viewport
func (w *BaseWidget) Place(viewport image.Rectangle, size image.Point) image.Point {
	x := viewport.Min.X + w.margin
	y := viewport.Min.Y + w.margin
	switch w.anchor {
	case TopRight:
		x = viewport.Max.X - w.margin - size.X
	case BottomLeft:
		y = viewport.Max.Y - w.margin - size.Y
	case BottomRight:
		x = viewport.Max.X - w.margin - size.X
		y = viewport.Max.Y - w.margin - size.Y
	}
	return image.Pt(x, y)
}

// BlendImage draws src over dst at pt, scaled by opacity and clipped to dst
func BlendImage(dst *image.RGBA, src image.Image, pt image.Point, opacity float64) {
	if opacity <= 0 {
		return
	}
	r := src.Bounds().Sub(src.Bounds().Min).Add(pt)
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, src, src.Bounds().Min, mask, image.Point{}, draw.Over)
}

// DrawRectangle fills r with c at the given opacity
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	if opacity <= 0 {
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity * 255)})
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, image.Point{}, draw.Over)
}
