package buffer

import (
	"time"
	"unsafe"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-scpi/instrument"
	"github.com/arloliu/go-scpi/logger"
)

// DefaultMemoryThreshold is the estimated retained-sample footprint above
// which the pool halves every ring's capacity.
const DefaultMemoryThreshold = 100 * 1024 * 1024

// sampleSize is the per-sample footprint estimate used for the memory
// ceiling. Metadata maps are not counted; the estimate is deliberately
// coarse and only drives the shrink heuristic.
var sampleSize = uint64(unsafe.Sizeof(instrument.Sample{}))

// Pool maps instrument identifiers to rings. Appending to an unknown
// identifier creates its ring on the fly, so callers never pre-register
// instruments.
type Pool struct {
	buffers *xsync.MapOf[string, *Ring]
	logger  logger.Logger

	capacity  int
	threshold uint64
}

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

// WithCapacity sets the capacity of auto-created rings.
func WithCapacity(n int) PoolOption {
	return func(p *Pool) {
		if n > 0 {
			p.capacity = n
		}
	}
}

// WithMemoryThreshold sets the estimated footprint that triggers a shrink.
func WithMemoryThreshold(bytes uint64) PoolOption {
	return func(p *Pool) {
		if bytes > 0 {
			p.threshold = bytes
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) { p.logger = l }
}

// NewPool creates an empty buffer pool.
func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		buffers:   xsync.NewMapOf[string, *Ring](),
		logger:    logger.GetLogger().With("component", "buffer-pool"),
		capacity:  DefaultCapacity,
		threshold: DefaultMemoryThreshold,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Append stores a sample in the instrument's ring, creating the ring when
// the identifier is new, then enforces the memory ceiling.
func (p *Pool) Append(id string, s instrument.Sample) {
	ring, _ := p.buffers.LoadOrCompute(id, func() *Ring {
		return NewRing(p.capacity)
	})
	ring.Append(s)

	if p.EstimateMemory() > p.threshold {
		p.shrink()
	}
}

// Get returns the ring for id, or nil when no sample was ever appended.
func (p *Pool) Get(id string) *Ring {
	ring, ok := p.buffers.Load(id)
	if !ok {
		return nil
	}

	return ring
}

// Range returns the samples of id with from <= Timestamp < to, oldest first.
// An unknown id yields nil.
func (p *Pool) Range(id string, from, to time.Time) []instrument.Sample {
	ring := p.Get(id)
	if ring == nil {
		return nil
	}

	return ring.Range(from, to)
}

// Remove discards the ring for id.
func (p *Pool) Remove(id string) {
	p.buffers.Delete(id)
}

// IDs returns the identifiers with a ring, in no particular order.
func (p *Pool) IDs() []string {
	ids := make([]string, 0, p.buffers.Size())
	p.buffers.Range(func(id string, _ *Ring) bool {
		ids = append(ids, id)
		return true
	})

	return ids
}

// Clear discards every ring.
func (p *Pool) Clear() {
	p.buffers.Clear()
}

// EstimateMemory returns the estimated footprint of all retained samples.
func (p *Pool) EstimateMemory() uint64 {
	var total uint64
	p.buffers.Range(func(_ string, r *Ring) bool {
		total += uint64(r.Cap()) * sampleSize
		return true
	})

	return total
}

// shrink halves every ring's capacity, evicting the oldest halves. Repeated
// pressure keeps halving on subsequent appends.
func (p *Pool) shrink() {
	before := p.EstimateMemory()

	p.buffers.Range(func(_ string, r *Ring) bool {
		r.resize(r.Cap() / 2)
		return true
	})

	p.logger.Warn("memory threshold exceeded, halved buffer capacities",
		"before", before, "after", p.EstimateMemory(), "threshold", p.threshold)
}
