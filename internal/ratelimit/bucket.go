// Package ratelimit implements the ingest-side token bucket: a
// capacity-bounded, periodically-full-refilled budget that throttles
// costly operations (batch appends, collection rule post-actions)
// instead of letting a burst overwhelm storage or downstream
// forwarding. Adapted from the teacher's containment-action budget:
// same full-refill-on-tick shape, retargeted from per-escalation-state
// costs to per-ingest-operation costs.
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/leopark123/intellimaint-pro/internal/config"
	"github.com/leopark123/intellimaint-pro/internal/errs"
)

// Operation names a costed ingest-side action.
type Operation string

const (
	OpAppendBatch       Operation = "append_batch"
	OpCollectionPostFunc Operation = "collection_post_action"
)

// CostModel maps an Operation to its token cost. Costs must be
// positive integers.
type CostModel map[Operation]int

// DefaultCostModel assigns append batches their baseline cost and
// collection rule post-actions (webhook calls, external notifications)
// a higher cost, since they fan out to external systems.
func DefaultCostModel() CostModel {
	return CostModel{
		OpAppendBatch:        1,
		OpCollectionPostFunc: 5,
	}
}

// Bucket is a thread-safe token bucket. Refills to full capacity on
// every tick rather than incrementally, matching the teacher's budget
// bucket.
type Bucket struct {
	mu           sync.Mutex
	capacity     int
	tokens       int
	refillPeriod time.Duration
	costs        CostModel

	consumedTotal atomic.Uint64
	refillCount   atomic.Uint64

	stop chan struct{}
}

// New creates a Bucket from cfg and starts its refill goroutine. Call
// Close to stop the goroutine. capacity<=0 or refillPeriod<=0 fall back
// to sane defaults rather than panicking, since cfg is user-supplied.
func New(cfg config.RateLimitConfig, costs CostModel) *Bucket {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = 1000
	}
	period := cfg.RefillPeriod
	if period <= 0 {
		period = time.Minute
	}
	if costs == nil {
		costs = DefaultCostModel()
	}
	b := &Bucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: period,
		costs:        costs,
		stop:         make(chan struct{}),
	}
	go b.refillLoop()
	return b
}

func (b *Bucket) refillLoop() {
	ticker := time.NewTicker(b.refillPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.mu.Lock()
			b.tokens = b.capacity
			b.mu.Unlock()
			b.refillCount.Add(1)
		case <-b.stop:
			return
		}
	}
}

// Consume attempts to consume cost tokens. Returns true if available.
func (b *Bucket) Consume(cost int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens >= cost {
		b.tokens -= cost
		b.consumedTotal.Add(uint64(cost))
		return true
	}
	return false
}

// Allow consumes the standard cost for op, returning errs.CodeRateLimited
// if the bucket has insufficient tokens. Operations with no entry in the
// cost model are free (cost 0).
func (b *Bucket) Allow(op Operation) error {
	cost, ok := b.costs[op]
	if !ok {
		return nil
	}
	if !b.Consume(cost) {
		return errs.New(errs.CodeRateLimited, "rate limit exceeded for operation %q (cost %d, remaining %d)", op, cost, b.Remaining())
	}
	return nil
}

func (b *Bucket) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}

func (b *Bucket) Capacity() int {
	return b.capacity
}

func (b *Bucket) ConsumedTotal() uint64 {
	return b.consumedTotal.Load()
}

func (b *Bucket) RefillCount() uint64 {
	return b.refillCount.Load()
}

// Close stops the refill goroutine. Safe to call once.
func (b *Bucket) Close() {
	close(b.stop)
}
