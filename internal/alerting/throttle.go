package alerting

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrSuppressed is returned when a notification falls inside its cooldown.
var ErrSuppressed = errors.New("notification suppressed by cooldown")

// Throttle forwards at most one notification per key and cooldown window.
type Throttle struct {
	next     Notifier
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	last      map[string]time.Time
	lastSweep time.Time
}

// NewThrottle wraps next. A zero cooldown forwards everything.
func NewThrottle(next Notifier, cooldown time.Duration) *Throttle {
	return &Throttle{
		next:     next,
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Notify forwards note unless its key fired within the cooldown. A failed
// delivery does not start the cooldown.
func (t *Throttle) Notify(ctx context.Context, note Notification) error {
	key := note.Key()
	now := t.now()

	if t.cooldown <= 0 {
		return t.next.Notify(ctx, note)
	}

	t.mu.Lock()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.cooldown {
		t.mu.Unlock()
		return ErrSuppressed
	}
	t.sweep(now)
	t.last[key] = now
	t.mu.Unlock()

	if err := t.next.Notify(ctx, note); err != nil {
		t.mu.Lock()
		if t.last[key].Equal(now) {
			delete(t.last, key)
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// sweep drops keys whose cooldown has elapsed, at most once per cooldown.
// The caller holds t.mu.
func (t *Throttle) sweep(now time.Time) {
	if now.Sub(t.lastSweep) < t.cooldown {
		return
	}
	t.lastSweep = now
	for key, last := range t.last {
		if now.Sub(last) >= t.cooldown {
			delete(t.last, key)
		}
	}
}

var _ Notifier = (*Throttle)(nil)
