package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Throttle logs a repeating message at most once per interval. Each
// emitted record carries how many calls were dropped since the last one.
// Poll loops keep one per wait.
type Throttle struct {
	Interval time.Duration
	Level    slog.Level

	mu      sync.Mutex
	last    time.Time
	dropped int
	now     func() time.Time
}

// NewThrottle returns a Throttle logging at level.
func NewThrottle(interval time.Duration, level slog.Level) *Throttle {
	return &Throttle{Interval: interval, Level: level}
}

// Log emits msg unless one was emitted less than Interval ago.
func (t *Throttle) Log(ctx context.Context, msg string, attrs ...slog.Attr) {
	if t == nil || !slog.Default().Enabled(ctx, t.Level) {
		return
	}
	now := time.Now
	if t.now != nil {
		now = t.now
	}
	ts := now()
	t.mu.Lock()
	if !t.last.IsZero() && ts.Sub(t.last) < t.Interval {
		t.dropped++
		t.mu.Unlock()
		return
	}
	dropped := t.dropped
	t.last, t.dropped = ts, 0
	t.mu.Unlock()
	if dropped > 0 {
		attrs = append(attrs, slog.Int("suppressed", dropped))
	}
	slog.LogAttrs(ctx, t.Level, msg, attrs...)
}
