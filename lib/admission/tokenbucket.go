package admission

import (
	"context"
	"golang.org/x/time/rate"
	"time"
)

// deadlineRetryInterval is the pause between admission attempts of a caller
// whose deadline is before the next regular token
const deadlineRetryInterval = 10 * time.Millisecond

// TokenBucket admits requests while tokens are available. The bucket starts
// full and refills continuously at the configured rate up to its capacity.
// Tokens are consumed on admission and never returned, so releasing a permit
// of this policy does nothing.
type TokenBucket struct {
	limiter *rate.Limiter
	metrics *policyMetrics
}

// NewTokenBucket creates a full bucket with capacity tokens that refills at
// refillRate tokens per second. Capacity values below 1 are raised to 1.
func NewTokenBucket(capacity int, refillRate rate.Limit) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(refillRate, capacity),
		metrics: newPolicyMetrics(PolicyTokenBucket),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see admission.IAdmissionController)
// --------------------------------------------------------------------------

func (b *TokenBucket) Admit(ctx context.Context) (*Permit, error) {
	start := time.Now()

	for {
		// Wait cancels its reservation if ctx ends, the token goes back to the bucket
		err := b.limiter.Wait(ctx)
		if err == nil {
			b.metrics.onAdmit(start)
			return newPermit(nil), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			b.metrics.onAbandon(start)
			return nil, ctxErr
		}

		// Wait refuses at once if the next token is due after the deadline of ctx.
		// The caller stays suspended until the deadline, tokens returned by
		// canceled waiters may still arrive before it.
		timer := time.NewTimer(deadlineRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.metrics.onAbandon(start)
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *TokenBucket) Name() string {
	return PolicyTokenBucket
}

// Tokens returns the number of tokens currently in the bucket
func (b *TokenBucket) Tokens() float64 {
	return b.limiter.Tokens()
}
