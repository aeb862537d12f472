package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/logger"
)

// Status is the live recording state the HUD reports
type Status interface {
	Elapsed() time.Duration
	Grabbed() uint64
	Skipped() uint64
	FPS() float64
}

// HUD draws its widgets over the displayed frame
type HUD struct {
	mu      sync.RWMutex
	widgets []Widget
	enabled bool
}

// NewHUD creates an empty, enabled HUD
func NewHUD() *HUD {
	return &HUD{enabled: true}
}

// NewRecordingHUD builds the standard HUD: a REC indicator with the elapsed
// time, frame counters and a caption such as the stream description
func NewRecordingHUD(status Status, caption string) *HUD {
	h := NewHUD()
	h.AddWidget(NewRecIndicator("rec", status)) //nolint:errcheck
	h.AddWidget(NewTextWidget("frames", BottomLeft, func() string { //nolint:errcheck
		return FormatCounters(status.Grabbed(), status.Skipped(), status.FPS())
	}))
	if caption != "" {
		h.AddWidget(NewTextWidget("caption", TopRight, func() string { return caption })) //nolint:errcheck
	}
	return h
}

// AddWidget adds a widget, drawn after the ones already present
func (h *HUD) AddWidget(widget Widget) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, w := range h.widgets {
		if w.ID() == widget.ID() {
			return fmt.Errorf("widget with ID %s already exists", widget.ID())
		}
	}
	h.widgets = append(h.widgets, widget)
	logger.WithComponent("overlay").Debug().
		Str("id", widget.ID()).
		Str("type", widget.Type()).
		Msg("Added widget")
	return nil
}

// RemoveWidget removes a widget by ID
func (h *HUD) RemoveWidget(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, w := range h.widgets {
		if w.ID() == id {
			h.widgets = append(h.widgets[:i], h.widgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("widget with ID %s not found", id)
}

// GetWidget retrieves a widget by ID
func (h *HUD) GetWidget(id string) (Widget, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, w := range h.widgets {
		if w.ID() == id {
			return w, true
		}
	}
	return nil, false
}

// SetEnabled turns the whole HUD on or off
func (h *HUD) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.enabled = enabled
}

// IsEnabled reports whether the HUD draws anything
func (h *HUD) IsEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

// Draw renders every enabled widget inside viewport
func (h *HUD) Draw(dst *image.RGBA, viewport image.Rectangle) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.enabled {
		return
	}
	for _, w := range h.widgets {
		if !w.IsEnabled() {
			continue
		}
		if err := w.Render(dst, viewport); err != nil {
			logger.WithComponent("overlay").Debug().
				Err(err).
				Str("id", w.ID()).
				Msg("Widget render failed")
		}
	}
}

// RecIndicator shows a blinking red dot followed by the elapsed time
type RecIndicator struct {
	*TextWidget
	status Status
	dot    color.RGBA
}

// NewRecIndicator creates the top-left REC widget
func NewRecIndicator(id string, status Status) *RecIndicator {
	r := &RecIndicator{
		status: status,
		dot:    color.RGBA{220, 30, 30, 255},
	}
	r.TextWidget = NewTextWidget(id, TopLeft, func() string {
		return "   REC " + FormatElapsed(status.Elapsed())
	})
	return r
}

// Type returns the widget type
func (r *RecIndicator) Type() string {
	return "rec"
}

// Render draws the label, then the dot during the first half of every second
func (r *RecIndicator) Render(img *image.RGBA, viewport image.Rectangle) error {
	if err := r.TextWidget.Render(img, viewport); err != nil {
		return err
	}
	elapsed := r.status.Elapsed()
	if elapsed%time.Second >= 500*time.Millisecond {
		return nil
	}

	text := r.text()
	size := r.Size(text)
	pt := r.Place(viewport, size)
	const d = 9
	cx, cy := pt.X+r.padding+d/2+1, pt.Y+size.Y/2
	for y := -d / 2; y <= d/2; y++ {
		for x := -d / 2; x <= d/2; x++ {
			if x*x+y*y > (d/2)*(d/2) {
				continue
			}
			if image.Pt(cx+x, cy+y).In(img.Bounds()) {
				img.SetRGBA(cx+x, cy+y, r.dot)
			}
		}
	}
	return nil
}

// FormatElapsed renders a duration as HH:MM:SS
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, s/60%60, s%60)
}

// FormatCounters renders the frame counters line
func FormatCounters(grabbed, skipped uint64, fps float64) string {
	return fmt.Sprintf("frames %d  skipped %d  %.1f fps", grabbed, skipped, fps)
}
