// Package pool recycles timers used for bounded waits. Engine start
// handshakes and stop joins create a timer per call; pooling them avoids the
// allocation churn when many short-lived tasks run back to back.
package pool

import (
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any { return time.NewTimer(time.Hour) },
}

// GetTimer returns a pooled timer armed for d. Release it with PutTimer once
// the wait is over; the timer must not be touched afterwards.
func GetTimer(d time.Duration) *time.Timer {
	t := timers.Get().(*time.Timer)

	// A recycled timer may still hold an undelivered tick from its previous
	// owner; Reset alone does not clear the channel.
	if t.Reset(d) || len(t.C) > 0 {
		select {
		case <-t.C:
		default:
		}
	}

	return t
}

// PutTimer stops t, drains any pending tick and returns it to the pool.
func PutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}

	timers.Put(t)
}
