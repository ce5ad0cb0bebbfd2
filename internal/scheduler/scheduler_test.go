package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveInterval(t *testing.T) {
	_, err := New(Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNextTickAlignment(t *testing.T) {
	s, err := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 10, 17, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC), s.nextTick(now))
	assert.Equal(t, time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC), s.nextTick(time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)))

	w := s.windowEnding(time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC), w.To)

	free, err := New(Options{Interval: time.Minute}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute), free.nextTick(now))
}

func TestRunInvokesTickUntilCancelled(t *testing.T) {
	s, err := New(Options{Name: "test", Interval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ctx context.Context, w Window) error {
			assert.Equal(t, 10*time.Millisecond, w.To.Sub(w.From))
			if ticks.Add(1) >= 3 {
				cancel()
			}
			return errors.New("failing ticks keep the loop alive")
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, ticks.Load(), int32(3))
}
