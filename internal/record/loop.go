// Package record runs recording sessions: the capture loop that moves frames
// from a source to a sink and a display, and the session and fallback logic
// that opens them.
package record

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/simplerecord/internal/display"
	"github.com/bryanchriswhite/simplerecord/internal/logger"
	"github.com/bryanchriswhite/simplerecord/internal/video"
	"github.com/rs/zerolog"
)

// writeErrorEvery rate-limits sink error logs after the first one
const writeErrorEvery = 100

// ExitReason tells why a loop stopped
type ExitReason string

const (
	ExitQuit        ExitReason = "quit"
	ExitCancelled   ExitReason = "cancelled"
	ExitMaxFrames   ExitReason = "max-frames"
	ExitEndOfStream ExitReason = "end-of-stream"
	ExitError       ExitReason = "error"
)

// FrameFunc receives each acquired frame inside the iteration. buf is reused
// once it returns.
type FrameFunc func(buf []byte, desc video.StreamDescriptor)

// Options tune a Loop
type Options struct {
	// MaxFrames stops the loop after this many acquired frames, 0 for no limit
	MaxFrames uint64
	// ExitOnEndOfStream stops the loop once a video.Ender source runs dry
	ExitOnEndOfStream bool
	// HUD is drawn over every rendered frame when not nil
	HUD display.Overlay
	// OnFrame taps acquired frames, used by the preview stream
	OnFrame FrameFunc
}

// Loop moves frames from a source to a sink and a surface, one at a time
type Loop struct {
	src     video.Source
	sink    video.Sink
	surface display.Surface
	opts    Options
	stats   *Stats
	meter   fpsMeter
	now     func() time.Time
	alloc   func(video.StreamDescriptor) *video.FrameBuffer
	log     *zerolog.Logger
}

// NewLoop wires already opened endpoints. stats may be nil.
func NewLoop(src video.Source, sink video.Sink, surface display.Surface, stats *Stats, opts Options) *Loop {
	if stats == nil {
		stats = &Stats{}
	}
	return &Loop{
		src:     src,
		sink:    sink,
		surface: surface,
		opts:    opts,
		stats:   stats,
		meter:   fpsMeter{window: time.Second},
		now:     time.Now,
		alloc:   video.NewFrameBuffer,
		log:     logger.WithComponent("record"),
	}
}

// SetLogger replaces the loop logger
func (l *Loop) SetLogger(log *zerolog.Logger) {
	l.log = log
}

// Stats returns the loop counters
func (l *Loop) Stats() *Stats {
	return l.stats
}

// Run iterates until the surface asks to quit, ctx is cancelled or a limit
// from Options is reached. Acquisition and sink failures are absorbed; only
// upload and present failures end the loop with an error.
func (l *Loop) Run(ctx context.Context) (ExitReason, error) {
	desc := l.src.Descriptor()
	if err := desc.Validate(); err != nil {
		return ExitError, fmt.Errorf("source descriptor: %w", err)
	}

	buf := l.alloc(desc)
	defer buf.Release()

	layout := desc.Format.Layout()
	ender, _ := l.src.(video.Ender)
	l.stats.reset(l.now())

	l.log.Info().
		Str("source", l.src.Name()).
		Str("sink", l.sink.Name()).
		Str("display", l.surface.Name()).
		Str("stream", desc.String()).
		Msg("Capture loop started")

	for {
		if reason, stop := l.terminated(ctx); stop {
			l.finish(reason)
			return reason, nil
		}
		l.stats.iterations.Add(1)

		frame := buf.Bytes()
		if l.src.GrabNext(frame, true) {
			l.stats.grabbed.Add(1)
			if err := l.surface.Upload(frame, desc, layout); err != nil {
				l.finish(ExitError)
				return ExitError, fmt.Errorf("upload frame: %w", err)
			}
			l.write(frame, desc)
			if l.opts.OnFrame != nil {
				l.opts.OnFrame(frame, desc)
			}
		} else {
			l.stats.skipped.Add(1)
			l.log.Debug().Uint64("iteration", l.stats.Iterations()).Msg("No frame acquired")
		}

		l.surface.Clear()
		l.surface.Render(l.opts.HUD)
		if err := l.surface.Present(); err != nil {
			l.finish(ExitError)
			return ExitError, fmt.Errorf("present frame: %w", err)
		}
		l.meter.tick(l.now(), l.stats.Grabbed(), l.stats)

		if l.opts.MaxFrames > 0 && l.stats.Grabbed() >= l.opts.MaxFrames {
			l.finish(ExitMaxFrames)
			return ExitMaxFrames, nil
		}
		if l.opts.ExitOnEndOfStream && ender != nil && ender.EndOfStream() {
			l.finish(ExitEndOfStream)
			return ExitEndOfStream, nil
		}
	}
}

func (l *Loop) terminated(ctx context.Context) (ExitReason, bool) {
	if ctx.Err() != nil {
		return ExitCancelled, true
	}
	if l.surface.ShouldQuit() {
		return ExitQuit, true
	}
	return "", false
}

func (l *Loop) write(frame []byte, desc video.StreamDescriptor) {
	if err := l.sink.WriteFrame(frame, desc.Width, desc.Height, desc.Format); err != nil {
		n := l.stats.writeErrors.Add(1)
		if n == 1 || n%writeErrorEvery == 0 {
			l.log.Warn().Err(err).Uint64("errors", n).Msg("Failed to write frame")
		}
		return
	}
	l.stats.written.Add(1)
}

func (l *Loop) finish(reason ExitReason) {
	s := l.stats.Snapshot()
	l.log.Info().
		Str("reason", string(reason)).
		Uint64("iterations", s.Iterations).
		Uint64("grabbed", s.Grabbed).
		Uint64("skipped", s.Skipped).
		Uint64("written", s.Written).
		Uint64("write_errors", s.WriteErrors).
		Dur("elapsed", l.stats.Elapsed()).
		Msg("Capture loop stopped")
}
