package overlay

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// TextWidget displays a line of text that is re-read on every render
type TextWidget struct {
	*BaseWidget
	text      func() string
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewTextWidget creates a text widget with a white label on a translucent
// black box
func NewTextWidget(id string, anchor Anchor, text func() string) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, anchor, 8, 1.0),
		text:       text,
		textColor:  color.RGBA{255, 255, 255, 255},
		bgColor:    &color.RGBA{0, 0, 0, 160},
		padding:    4,
	}
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.bgColor = c
}

// Size returns the pixel size of the rendered box for text
func (w *TextWidget) Size(text string) image.Point {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	return image.Pt(width+w.padding*2, face.Metrics().Height.Ceil()+w.padding*2)
}

// Render draws the text box anchored in viewport
func (w *TextWidget) Render(img *image.RGBA, viewport image.Rectangle) error {
	if !w.IsEnabled() || w.text == nil {
		return nil
	}
	text := w.text()
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	size := w.Size(text)
	pt := w.Place(viewport, size)
	box := image.Rectangle{Min: pt, Max: pt.Add(size)}

	if w.bgColor != nil {
		DrawRectangle(img, box, *w.bgColor, w.opacity)
	}

	// Render text into its own image so opacity applies to it as a whole
	textImg := image.NewRGBA(image.Rectangle{Max: size})
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(w.textColor),
		Face: face,
		Dot:  fixed.P(w.padding, w.padding+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
	BlendImage(img, textImg, pt, w.opacity)

	return nil
}
