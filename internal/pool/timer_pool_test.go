package pool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerReuse(t *testing.T) {
	t.Run("recycled timer fires at the new deadline", func(t *testing.T) {
		first := GetTimer(time.Hour)
		PutTimer(first)

		begin := time.Now()
		second := GetTimer(30 * time.Millisecond)

		select {
		case tick := <-second.C:
			assert.GreaterOrEqual(t, tick.Sub(begin), 25*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("recycled timer never fired")
		}
		PutTimer(second)
	})

	t.Run("expired tick is drained before reuse", func(t *testing.T) {
		timer := GetTimer(time.Millisecond)
		time.Sleep(20 * time.Millisecond) // let it fire without reading the tick
		PutTimer(timer)

		next := GetTimer(50 * time.Millisecond)
		select {
		case tick := <-next.C:
			// A stale tick would arrive immediately with an old timestamp.
			require.WithinDuration(t, time.Now(), tick, 30*time.Millisecond)
		case <-time.After(time.Second):
			t.Fatal("timer never fired")
		}
		PutTimer(next)
	})

	t.Run("concurrent waiters", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(5 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}
