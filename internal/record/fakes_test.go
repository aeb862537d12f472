package record

import (
	"errors"
	"fmt"
	"image"

	"github.com/bryanchriswhite/simplerecord/internal/display"
	"github.com/bryanchriswhite/simplerecord/internal/video"
)

// event is one call observed by the fakes, in order
type event struct {
	kind  string
	value byte
}

type journal struct {
	events []event
}

func (j *journal) add(kind string, value byte) {
	j.events = append(j.events, event{kind, value})
}

func (j *journal) count(kind string) int {
	n := 0
	for _, e := range j.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

// fakeSource yields frames filled with an increasing byte; results scripts
// which grabs succeed, repeating the last entry
type fakeSource struct {
	j       *journal
	desc    video.StreamDescriptor
	results []bool
	grabs   int
	next    byte
	closed  bool
}

func newFakeSource(j *journal, results ...bool) *fakeSource {
	return &fakeSource{
		j:       j,
		desc:    video.NewStreamDescriptor(4, 2, video.FormatGray8),
		results: results,
	}
}

func (s *fakeSource) Name() string                      { return "fake" }
func (s *fakeSource) Descriptor() video.StreamDescriptor { return s.desc }

func (s *fakeSource) GrabNext(buf []byte, wait bool) bool {
	ok := true
	if len(s.results) > 0 {
		i := s.grabs
		if i >= len(s.results) {
			i = len(s.results) - 1
		}
		ok = s.results[i]
	}
	s.grabs++
	if !ok {
		s.j.add("grab-fail", 0)
		return false
	}
	s.next++
	for i := range buf[:s.desc.SizeBytes] {
		buf[i] = s.next
	}
	s.j.add("grab", s.next)
	return true
}

func (s *fakeSource) Close() error {
	s.closed = true
	s.j.add("close-source", 0)
	return nil
}

// enderSource reports end of stream after limit grabs
type enderSource struct {
	*fakeSource
	limit int
}

func (s *enderSource) EndOfStream() bool {
	return s.grabs >= s.limit
}

type fakeSink struct {
	j         *journal
	failEvery int
	added     video.PixelFormat
	addErr    error
	closeErr  error
	frames    int
	closed    bool
}

func (s *fakeSink) Name() string { return "fake" }

func (s *fakeSink) AddStream(w, h int, format video.PixelFormat) error {
	if s.addErr != nil {
		return s.addErr
	}
	s.added = format
	return nil
}

func (s *fakeSink) WriteFrame(buf []byte, w, h int, format video.PixelFormat) error {
	s.frames++
	if s.failEvery > 0 && s.frames%s.failEvery == 0 {
		s.j.add("write-fail", buf[0])
		return errors.New("disk full")
	}
	s.j.add("write", buf[0])
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	s.j.add("close-sink", 0)
	return s.closeErr
}

// fakeSurface quits after quitAfter presents, never when zero
type fakeSurface struct {
	j          *journal
	quitAfter  int
	quitNow    bool
	presents   int
	presentErr error
	layouts    []video.TextureLayout
	overlays   int
	closed     bool
}

func (s *fakeSurface) Name() string { return "fake" }

func (s *fakeSurface) Upload(buf []byte, desc video.StreamDescriptor, layout video.TextureLayout) error {
	s.layouts = append(s.layouts, layout)
	s.j.add("upload", buf[0])
	return nil
}

func (s *fakeSurface) Clear() { s.j.add("clear", 0) }

func (s *fakeSurface) Render(overlay display.Overlay) {
	if overlay != nil {
		s.overlays++
		overlay.Draw(image.NewRGBA(image.Rect(0, 0, 64, 48)), image.Rect(0, 0, 64, 48))
	}
	s.j.add("render", 0)
}

func (s *fakeSurface) Present() error {
	s.presents++
	s.j.add("present", 0)
	return s.presentErr
}

func (s *fakeSurface) ShouldQuit() bool {
	return s.quitNow || (s.quitAfter > 0 && s.presents >= s.quitAfter)
}

func (s *fakeSurface) Close() error {
	s.closed = true
	s.j.add("close-surface", 0)
	return nil
}

// openError mimics what capture.Open and output.Open return
func openError(role video.Role, uri string) error {
	return video.NewOpenError(role, uri, fmt.Errorf("%w: %s", video.ErrDeviceUnavailable, uri))
}
