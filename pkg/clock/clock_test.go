package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func Test_Clock(t *testing.T) {
	t.Run("Real clock sleep should return when the context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		start := time.Now()
		err := NewRealClock().Sleep(ctx, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(start), time.Second)
	})
	t.Run("Real clock sleep should wait for short durations", func(t *testing.T) {
		start := time.Now()
		err := NewRealClock().Sleep(context.Background(), 10*time.Millisecond)
		assert.Nil(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	})
	t.Run("Fake clock should advance on sleep and record durations", func(t *testing.T) {
		start := time.Unix(1_700_000_000, 0)
		fc := NewFakeClock(start)

		assert.Nil(t, fc.Sleep(context.Background(), 15*time.Second))
		assert.Nil(t, fc.Sleep(context.Background(), 0))
		fc.Advance(time.Minute)

		assert.Equal(t, start.Add(75*time.Second), fc.Now())
		assert.Equal(t, []time.Duration{15 * time.Second, 0}, fc.Sleeps())
	})
	t.Run("Fake clock should call the hook and honour cancellation", func(t *testing.T) {
		fc := NewFakeClock(time.Unix(0, 0))
		ctx, cancel := context.WithCancel(context.Background())
		fc.OnSleep = func(count int) {
			if count == 2 {
				cancel()
			}
		}

		assert.Nil(t, fc.Sleep(ctx, time.Second))
		assert.Nil(t, fc.Sleep(ctx, time.Second))
		assert.ErrorIs(t, fc.Sleep(ctx, time.Second), context.Canceled)
		assert.Len(t, fc.Sleeps(), 2)
	})
}
