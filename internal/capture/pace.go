package capture

import "time"

// pacer spaces frames at a fixed rate
type pacer struct {
	interval time.Duration
	next     time.Time
}

// newPacer returns nil for fps <= 0, which never delays
func newPacer(fps float64) *pacer {
	if fps <= 0 {
		return nil
	}
	return &pacer{interval: time.Duration(float64(time.Second) / fps)}
}

// ready blocks until the next frame is due. Without wait, or when the frame
// is further away than limit, it reports false instead.
func (p *pacer) ready(wait bool, limit time.Duration) bool {
	if p == nil {
		return true
	}
	now := time.Now()
	if p.next.IsZero() {
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		if !wait {
			return false
		}
		if d > limit {
			time.Sleep(limit)
			return false
		}
		time.Sleep(d)
		now = time.Now()
	}
	// Do not try to catch up after a stall
	if now.Sub(p.next) > p.interval {
		p.next = now
	}
	p.next = p.next.Add(p.interval)
	return true
}
