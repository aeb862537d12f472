package overlay

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	elapsed time.Duration
	grabbed uint64
}

func (s fakeStatus) Elapsed() time.Duration { return s.elapsed }
func (s fakeStatus) Grabbed() uint64        { return s.grabbed }
func (s fakeStatus) Skipped() uint64        { return 2 }
func (s fakeStatus) FPS() float64           { return 29.97 }

func blank(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func changed(img *image.RGBA, r image.Rectangle) bool {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if c := img.RGBAAt(x, y); c.R != 0 || c.G != 0 || c.B != 0 {
				return true
			}
		}
	}
	return false
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatElapsed(-time.Second))
	assert.Equal(t, "00:01:05", FormatElapsed(65*time.Second+300*time.Millisecond))
	assert.Equal(t, "02:00:01", FormatElapsed(2*time.Hour+time.Second))
	assert.Equal(t, "frames 10  skipped 2  30.0 fps", FormatCounters(10, 2, 29.97))
}

func TestPlace(t *testing.T) {
	vp := image.Rect(100, 50, 500, 350)
	size := image.Pt(40, 20)
	tests := []struct {
		anchor Anchor
		want   image.Point
	}{
		{TopLeft, image.Pt(108, 58)},
		{TopRight, image.Pt(452, 58)},
		{BottomLeft, image.Pt(108, 322)},
		{BottomRight, image.Pt(452, 322)},
	}
	for _, tc := range tests {
		w := NewBaseWidget("x", tc.anchor, 8, 1)
		assert.Equal(t, tc.want, w.Place(vp, size))
	}
}

func TestTextWidgetDrawsInsideViewport(t *testing.T) {
	img := blank(200, 100)
	vp := image.Rect(50, 0, 150, 100)
	w := NewTextWidget("t", TopLeft, func() string { return "hi" })
	require.NoError(t, w.Render(img, vp))

	size := w.Size("hi")
	assert.True(t, changed(img, image.Rectangle{Min: image.Pt(58, 8), Max: image.Pt(58, 8).Add(size)}))
	assert.False(t, changed(img, image.Rect(0, 0, 50, 100)), "left of the viewport")

	w.SetEnabled(false)
	img2 := blank(200, 100)
	require.NoError(t, w.Render(img2, vp))
	assert.False(t, changed(img2, img2.Bounds()))
}

func TestDrawRectangleOpacity(t *testing.T) {
	img := blank(4, 4)
	DrawRectangle(img, image.Rect(0, 0, 2, 2), color.RGBA{200, 0, 0, 255}, 0.5)
	c := img.RGBAAt(0, 0)
	assert.InDelta(t, 100, int(c.R), 2)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(3, 3))

	DrawRectangle(img, image.Rect(2, 2, 4, 4), color.White, 0)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(3, 3))
}

func TestRecordingHUD(t *testing.T) {
	status := fakeStatus{elapsed: 3*time.Second + 100*time.Millisecond, grabbed: 90}
	hud := NewRecordingHUD(status, "640x480 RGB24")

	_, ok := hud.GetWidget("rec")
	assert.True(t, ok)
	_, ok = hud.GetWidget("caption")
	assert.True(t, ok)
	assert.Error(t, hud.AddWidget(NewTextWidget("rec", TopLeft, nil)))

	img := blank(320, 240)
	hud.Draw(img, img.Bounds())

	// The blinking dot is red during the first half second
	found := false
	for y := 0; y < 40 && !found; y++ {
		for x := 0; x < 40; x++ {
			if img.RGBAAt(x, y) == (color.RGBA{220, 30, 30, 255}) {
				found = true
				break
			}
		}
	}
	assert.True(t, found)
	assert.True(t, changed(img, image.Rect(0, 200, 320, 240)), "counters at the bottom")

	require.NoError(t, hud.RemoveWidget("caption"))
	assert.Error(t, hud.RemoveWidget("caption"))

	hud.SetEnabled(false)
	img = blank(320, 240)
	hud.Draw(img, img.Bounds())
	assert.False(t, changed(img, img.Bounds()))
}
