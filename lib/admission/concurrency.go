package admission

import (
	"context"
	"golang.org/x/sync/semaphore"
	"sync/atomic"
	"time"
)

// BoundedConcurrency admits at most max requests at the same time.
// Waiters are admitted in arrival order.
type BoundedConcurrency struct {
	sem      *semaphore.Weighted
	max      int64
	inFlight atomic.Int64
	metrics  *policyMetrics
}

// NewBoundedConcurrency creates a controller with max slots.
// Values below 1 are raised to 1.
func NewBoundedConcurrency(max int64) *BoundedConcurrency {
	if max < 1 {
		max = 1
	}
	return &BoundedConcurrency{
		sem:     semaphore.NewWeighted(max),
		max:     max,
		metrics: newPolicyMetrics(PolicyConcurrency),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see admission.IAdmissionController)
// --------------------------------------------------------------------------

func (c *BoundedConcurrency) Admit(ctx context.Context) (*Permit, error) {
	start := time.Now()

	// the semaphore may grant a free slot even if ctx is already done
	if err := ctx.Err(); err != nil {
		c.metrics.onAbandon(start)
		return nil, err
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.metrics.onAbandon(start)
		return nil, err
	}

	c.inFlight.Add(1)
	c.metrics.inFlight.Inc()
	c.metrics.onAdmit(start)

	return newPermit(func() {
		c.inFlight.Add(-1)
		c.metrics.inFlight.Dec()
		c.sem.Release(1)
	}), nil
}

func (c *BoundedConcurrency) Name() string {
	return PolicyConcurrency
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// InFlight returns the number of currently held slots
func (c *BoundedConcurrency) InFlight() int64 {
	return c.inFlight.Load()
}

// Max returns the number of slots
func (c *BoundedConcurrency) Max() int64 {
	return c.max
}
