package record

import (
	"math"
	"sync/atomic"
	"time"
)

// Stats counts loop activity. Every field is atomic so the status API can
// read it while the loop runs.
type Stats struct {
	iterations  atomic.Uint64
	grabbed     atomic.Uint64
	skipped     atomic.Uint64
	written     atomic.Uint64
	writeErrors atomic.Uint64
	start       atomic.Int64
	fps         atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats
type StatsSnapshot struct {
	Iterations  uint64    `json:"iterations"`
	Grabbed     uint64    `json:"grabbed"`
	Skipped     uint64    `json:"skipped"`
	Written     uint64    `json:"written"`
	WriteErrors uint64    `json:"write_errors"`
	Started     time.Time `json:"started"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	FPS         float64   `json:"fps"`
}

func (s *Stats) reset(now time.Time) {
	s.iterations.Store(0)
	s.grabbed.Store(0)
	s.skipped.Store(0)
	s.written.Store(0)
	s.writeErrors.Store(0)
	s.fps.Store(0)
	s.start.Store(now.UnixNano())
}

func (s *Stats) Iterations() uint64  { return s.iterations.Load() }
func (s *Stats) Grabbed() uint64     { return s.grabbed.Load() }
func (s *Stats) Skipped() uint64     { return s.skipped.Load() }
func (s *Stats) Written() uint64     { return s.written.Load() }
func (s *Stats) WriteErrors() uint64 { return s.writeErrors.Load() }

// Started returns when the loop last began, zero before the first run
func (s *Stats) Started() time.Time {
	ns := s.start.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Elapsed returns the time since the loop began
func (s *Stats) Elapsed() time.Duration {
	started := s.Started()
	if started.IsZero() {
		return 0
	}
	return time.Since(started)
}

// FPS returns the acquisition rate measured over the last second
func (s *Stats) FPS() float64 {
	return math.Float64frombits(s.fps.Load())
}

func (s *Stats) setFPS(fps float64) {
	s.fps.Store(math.Float64bits(fps))
}

// Snapshot copies the counters
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Iterations:  s.Iterations(),
		Grabbed:     s.Grabbed(),
		Skipped:     s.Skipped(),
		Written:     s.Written(),
		WriteErrors: s.WriteErrors(),
		Started:     s.Started(),
		ElapsedMS:   s.Elapsed().Milliseconds(),
		FPS:         s.FPS(),
	}
}

// fpsMeter turns grab counts into a rate once per window. Only the loop
// goroutine touches it.
type fpsMeter struct {
	window time.Duration
	since  time.Time
	count  uint64
}

func (m *fpsMeter) tick(now time.Time, grabbed uint64, stats *Stats) {
	if m.since.IsZero() {
		m.since, m.count = now, grabbed
		return
	}
	dt := now.Sub(m.since)
	if dt < m.window {
		return
	}
	stats.setFPS(float64(grabbed-m.count) / dt.Seconds())
	m.since, m.count = now, grabbed
}
