// Package buffer provides fixed-capacity sample retention: a circular Ring
// holding the most recent samples of one instrument, and a Pool mapping
// instrument identifiers to rings with a shared memory ceiling.
package buffer

import (
	"sort"
	"sync"
	"time"

	"github.com/arloliu/go-scpi/instrument"
)

// DefaultCapacity is the ring size used when a pool auto-creates a buffer.
const DefaultCapacity = 1000

// Ring is a fixed-capacity circular buffer of samples. When full, appending
// evicts the oldest sample. All methods are safe for concurrent use; reads
// take a snapshot and never block appends for long.
type Ring struct {
	mu    sync.RWMutex
	data  []instrument.Sample
	head  int // index of the oldest sample
	count int
}

// NewRing creates a ring holding at most capacity samples. A non-positive
// capacity selects DefaultCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Ring{data: make([]instrument.Sample, capacity)}
}

// Append adds a sample, evicting the oldest when full. O(1).
func (r *Ring) Append(s instrument.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tail := (r.head + r.count) % len(r.data)
	r.data[tail] = s

	if r.count < len(r.data) {
		r.count++
	} else {
		r.head = (r.head + 1) % len(r.data)
	}
}

// Len returns the number of retained samples.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.data)
}

// Snapshot returns all retained samples, oldest first. The slice is a copy;
// the caller may keep it indefinitely.
func (r *Ring) Snapshot() []instrument.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.copyRange(0, r.count)
}

// Recent returns the n most recent samples, oldest first. n larger than the
// retained count returns everything.
func (r *Ring) Recent(n int) []instrument.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.count {
		n = r.count
	}
	if n <= 0 {
		return nil
	}

	return r.copyRange(r.count-n, r.count)
}

// Oldest returns the oldest retained sample.
func (r *Ring) Oldest() (instrument.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return instrument.Sample{}, false
	}

	return r.data[r.head], true
}

// Newest returns the most recently appended sample.
func (r *Ring) Newest() (instrument.Sample, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.count == 0 {
		return instrument.Sample{}, false
	}

	return r.data[(r.head+r.count-1)%len(r.data)], true
}

// Range returns the retained samples with from <= Timestamp < to, oldest
// first. Samples arrive time-ordered per instrument, so the window is a
// contiguous run found by binary search.
func (r *Ring) Range(from, to time.Time) []instrument.Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at := func(i int) instrument.Sample {
		return r.data[(r.head+i)%len(r.data)]
	}

	lo := sort.Search(r.count, func(i int) bool { return !at(i).Timestamp.Before(from) })
	hi := sort.Search(r.count, func(i int) bool { return !at(i).Timestamp.Before(to) })

	return r.copyRange(lo, hi)
}

// Clear discards all retained samples, keeping the capacity.
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.head = 0
	r.count = 0
}

// resize replaces the backing array, keeping the newest samples that fit.
func (r *Ring) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keep := r.count
	if keep > capacity {
		keep = capacity
	}

	data := make([]instrument.Sample, capacity)
	for i := 0; i < keep; i++ {
		data[i] = r.data[(r.head+r.count-keep+i)%len(r.data)]
	}

	r.data = data
	r.head = 0
	r.count = keep
}

// copyRange copies logical indices [from, to) oldest-first. Caller holds the
// lock.
func (r *Ring) copyRange(from, to int) []instrument.Sample {
	if to <= from {
		return nil
	}

	out := make([]instrument.Sample, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, r.data[(r.head+i)%len(r.data)])
	}

	return out
}
