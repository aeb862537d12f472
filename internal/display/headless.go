package display

import (
	"image"
	"sync"
	"sync/atomic"

	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// Headless renders into memory only. It never asks to quit on its own.
type Headless struct {
	canvas    *canvas
	mu        sync.Mutex
	presented *image.RGBA
	count     atomic.Uint64
	quit      atomic.Bool
}

// NewHeadless creates an off-screen surface
func NewHeadless(width, height int) *Headless {
	return &Headless{canvas: newCanvas(width, height)}
}

func (h *Headless) Name() string {
	return "none"
}

func (h *Headless) Upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error {
	return h.canvas.upload(buf, desc, layout)
}

func (h *Headless) Clear() {
	h.canvas.clear()
}

func (h *Headless) Render(overlay Overlay) {
	h.canvas.render(overlay)
}

// Present keeps a copy of the back buffer for Snapshot
func (h *Headless) Present() error {
	h.mu.Lock()
	if h.presented == nil || h.presented.Bounds() != h.canvas.back.Bounds() {
		h.presented = image.NewRGBA(h.canvas.back.Bounds())
	}
	copy(h.presented.Pix, h.canvas.back.Pix)
	h.mu.Unlock()
	h.count.Add(1)
	return nil
}

// Snapshot returns a copy of the last presented image, nil before the first
// Present
func (h *Headless) Snapshot() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.presented == nil {
		return nil
	}
	out := image.NewRGBA(h.presented.Bounds())
	copy(out.Pix, h.presented.Pix)
	return out
}

// Presented returns how many times Present was called
func (h *Headless) Presented() uint64 {
	return h.count.Load()
}

// RequestQuit makes ShouldQuit report true, as a window close would
func (h *Headless) RequestQuit() {
	h.quit.Store(true)
}

func (h *Headless) ShouldQuit() bool {
	return h.quit.Load()
}

func (h *Headless) Close() error {
	return nil
}
