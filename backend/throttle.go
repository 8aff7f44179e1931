package backend

import "time"

// ProgressThrottle rate-limits progress emission so a single transfer does
// not flood listeners with thousands of near-identical events.
type ProgressThrottle struct {
	minInterval time.Duration
	minDelta    float64

	now         func() time.Time
	lastEmit    time.Time
	lastPercent float64
}

// NewProgressThrottle returns a throttle with the standard gates: at most
// one event per 250ms unless the percentage moved half a point or the
// transfer completed.
func NewProgressThrottle() *ProgressThrottle {
	return &ProgressThrottle{
		minInterval: 250 * time.Millisecond,
		minDelta:    0.5,
		now:         time.Now,
	}
}

// ShouldEmit reports whether a progress event at the given position should
// be forwarded, updating the throttle state when it says yes.
func (t *ProgressThrottle) ShouldEmit(percent float64, downloaded, total int64) bool {
	now := t.now()

	emit := t.lastEmit.IsZero() ||
		now.Sub(t.lastEmit) >= t.minInterval ||
		abs(percent-t.lastPercent) >= t.minDelta ||
		(total > 0 && downloaded >= total)

	if emit {
		t.lastEmit = now
		t.lastPercent = percent
	}
	return emit
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
