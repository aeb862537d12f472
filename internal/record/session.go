package record

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/capture"
	"github.com/bryanchriswhite/simplerecord/internal/display"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/output"
	"github.com/bryanchriswhite/simplerecord/internal/overlay"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/google/uuid"
)

// Openers create the endpoints of a session. Each may be replaced, which is
// how tests run sessions without devices.
type Openers struct {
	Source  func(uri string) (video.Source, error)
	Sink    func(uri string) (video.Sink, error)
	Surface func(desc video.StreamDescriptor) (display.Surface, error)
}

// DefaultOpeners open endpoints through the capture, output and display
// packages
func DefaultOpeners(capOpts capture.Options, outOpts output.Options, backend string, dispOpts display.Options) Openers {
	return Openers{
		Source: func(uri string) (video.Source, error) {
			return capture.Open(uri, capOpts)
		},
		Sink: func(uri string) (video.Sink, error) {
			return output.Open(uri, outOpts)
		},
		Surface: func(desc video.StreamDescriptor) (display.Surface, error) {
			return display.Open(backend, desc, dispOpts)
		},
	}
}

// SessionConfig holds the per-session settings
type SessionConfig struct {
	// SinkFormat is the format the sink stores, the source format when unknown
	SinkFormat video.PixelFormat
	// HUD draws the recording indicator and counters
	HUD     bool
	Caption string
	Loop    Options
}

// Info describes the current or last session
type Info struct {
	ID        string                 `json:"id"`
	SourceURI string                 `json:"source_uri"`
	SinkURI   string                 `json:"sink_uri"`
	Source    string                 `json:"source,omitempty"`
	Sink      string                 `json:"sink,omitempty"`
	Display   string                 `json:"display,omitempty"`
	Stream    video.StreamDescriptor `json:"stream"`
	Started   time.Time              `json:"started"`
	Running   bool                   `json:"running"`
	Exit      ExitReason             `json:"exit,omitempty"`
}

// Session opens a source, a sink and a surface, runs a Loop over them and
// closes everything in reverse order
type Session struct {
	open  Openers
	cfg   SessionConfig
	stats *Stats

	mu   sync.RWMutex
	info Info
}

// NewSession creates a session runner. One Session may Run several times;
// each run gets a fresh ID and counters.
func NewSession(open Openers, cfg SessionConfig) *Session {
	return &Session{
		open:  open,
		cfg:   cfg,
		stats: &Stats{},
	}
}

// SetFrameTap sets the loop frame tap used by later runs
func (s *Session) SetFrameTap(fn FrameFunc) {
	s.cfg.Loop.OnFrame = fn
}

// Stats returns the counters of the current or last run
func (s *Session) Stats() *Stats {
	return s.stats
}

// Info returns a copy of the session description
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

func (s *Session) update(fn func(*Info)) {
	s.mu.Lock()
	fn(&s.info)
	s.mu.Unlock()
}

// Run records sourceURI into sinkURI until the loop stops. Source and sink
// failures are returned as *video.OpenError; a surface failure is returned
// as a plain error.
func (s *Session) Run(ctx context.Context, sourceURI, sinkURI string) (err error) {
	id := uuid.New().String()
	log := logger.WithSession("record", id)
	s.update(func(i *Info) {
		*i = Info{ID: id, SourceURI: sourceURI, SinkURI: sinkURI, Started: time.Now()}
	})

	log.Info().Str("source", sourceURI).Str("sink", sinkURI).Msg("Starting session")

	src, err := s.open.Source(sourceURI)
	if err != nil {
		return video.NewOpenError(video.RoleSource, sourceURI, err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close source")
		}
	}()
	desc := src.Descriptor()

	sink, err := s.open.Sink(sinkURI)
	if err != nil {
		return video.NewOpenError(video.RoleSink, sinkURI, err)
	}
	// The sink finalizes its output on close, so its error is the run's
	// error when nothing failed before
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close sink")
			if err == nil {
				err = fmt.Errorf("close sink: %w", cerr)
			}
		}
	}()

	format := s.cfg.SinkFormat
	if !format.Valid() {
		format = desc.Format
	}
	if err := sink.AddStream(desc.Width, desc.Height, format); err != nil {
		return video.NewOpenError(video.RoleSink, sinkURI, err)
	}

	surface, err := s.open.Surface(desc)
	if err != nil {
		return fmt.Errorf("open display: %w", err)
	}
	defer func() {
		if cerr := surface.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("Failed to close display")
		}
	}()

	s.update(func(i *Info) {
		i.Source = src.Name()
		i.Sink = sink.Name()
		i.Display = surface.Name()
		i.Stream = desc
		i.Running = true
	})

	opts := s.cfg.Loop
	if s.cfg.HUD && opts.HUD == nil {
		caption := s.cfg.Caption
		if caption == "" {
			caption = sinkURI
		}
		opts.HUD = overlay.NewRecordingHUD(s.stats, caption)
	}

	loop := NewLoop(src, sink, surface, s.stats, opts)
	loop.SetLogger(log)
	reason, err := loop.Run(ctx)

	s.update(func(i *Info) {
		i.Running = false
		i.Exit = reason
	})
	return err
}
