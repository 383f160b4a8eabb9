package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("without jitter", func(t *testing.T) {
		b := &Backoff{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 2}
		for attempt, want := range []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			time.Second,
			time.Second,
		} {
			delay, ok := b.NextDelay(attempt, nil)
			assert.True(t, ok)
			assert.Equal(t, want, delay, "attempt %d", attempt)
		}
	})

	t.Run("with jitter", func(t *testing.T) {
		b := DefaultBackoff()
		delay, ok := b.NextDelay(1, nil)
		assert.True(t, ok)
		assert.GreaterOrEqual(t, delay, 800*time.Millisecond)
		assert.LessOrEqual(t, delay, 1200*time.Millisecond)
	})

	t.Run("max attempts", func(t *testing.T) {
		b := &Backoff{Initial: time.Millisecond, MaxAttempts: 2}
		_, ok := b.NextDelay(1, nil)
		assert.True(t, ok)
		_, ok = b.NextDelay(2, nil)
		assert.False(t, ok)
	})
}

func TestDo(t *testing.T) {
	boom := errors.New("boom")

	t.Run("succeeds after retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), Fixed{Delay: time.Millisecond}, func(context.Context) error {
			calls++
			if calls < 3 {
				return boom
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), Fixed{Delay: time.Millisecond, MaxAttempts: 2}, func(context.Context) error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Do(ctx, Fixed{Delay: time.Hour}, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
