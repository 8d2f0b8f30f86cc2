package admission

import (
	"context"
	"errors"
	"golang.org/x/time/rate"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPermitReleaseIdempotent(t *testing.T) {
	var calls atomic.Int32
	p := newPermit(func() { calls.Add(1) })

	p.Release()
	p.Release()
	p.Release()

	if calls.Load() != 1 {
		t.Fatalf("expected release func to run once, ran %d times", calls.Load())
	}

	// nil permits and permits without release func are safe
	var nilPermit *Permit
	nilPermit.Release()
	newPermit(nil).Release()
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"concurrency", Config{Policy: PolicyConcurrency, Max: 1}, false},
		{"concurrency zero max", Config{Policy: PolicyConcurrency, Max: 0}, true},
		{"token bucket", Config{Policy: PolicyTokenBucket, Capacity: 5, RefillRate: 0.5}, false},
		{"token bucket zero capacity", Config{Policy: PolicyTokenBucket, Capacity: 0, RefillRate: 1}, true},
		{"token bucket zero refill", Config{Policy: PolicyTokenBucket, Capacity: 5, RefillRate: 0}, true},
		{"token bucket negative refill", Config{Policy: PolicyTokenBucket, Capacity: 5, RefillRate: -1}, true},
		{"unknown policy", Config{Policy: "lottery", Max: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew(t *testing.T) {
	c, err := New(Config{Policy: PolicyConcurrency, Max: 3})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Name() != PolicyConcurrency {
		t.Errorf("expected policy %s, got %s", PolicyConcurrency, c.Name())
	}

	c, err = New(Config{Policy: PolicyTokenBucket, Capacity: 3, RefillRate: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if c.Name() != PolicyTokenBucket {
		t.Errorf("expected policy %s, got %s", PolicyTokenBucket, c.Name())
	}

	if _, err := New(Config{Policy: PolicyTokenBucket, Capacity: 3}); err == nil {
		t.Error("expected New to reject a token bucket without refill")
	}
}

// --------------------------------------------------------------------------
// Bounded concurrency
// --------------------------------------------------------------------------

func TestBoundedConcurrencyBound(t *testing.T) {
	for _, max := range []int64{1, 3, 10} {
		c := NewBoundedConcurrency(max)

		const requests = 25
		var current, peak atomic.Int64
		var wg sync.WaitGroup

		for i := 0; i < requests; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				p, err := c.Admit(context.Background())
				if err != nil {
					t.Errorf("Admit failed: %v", err)
					return
				}
				defer p.Release()

				n := current.Add(1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				current.Add(-1)
			}()
		}
		wg.Wait()

		if peak.Load() > max {
			t.Errorf("max=%d: observed %d concurrent holders", max, peak.Load())
		}
		if c.InFlight() != 0 {
			t.Errorf("max=%d: expected no slots held after all releases, got %d", max, c.InFlight())
		}
	}
}

func TestBoundedConcurrencySuspends(t *testing.T) {
	c := NewBoundedConcurrency(1)

	held, err := c.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	admitted := make(chan *Permit)
	go func() {
		p, err := c.Admit(context.Background())
		if err != nil {
			t.Errorf("waiting Admit failed: %v", err)
		}
		admitted <- p
	}()

	select {
	case <-admitted:
		t.Fatal("second Admit returned while the only slot was held")
	case <-time.After(50 * time.Millisecond):
	}

	held.Release()

	select {
	case p := <-admitted:
		p.Release()
	case <-time.After(time.Second):
		t.Fatal("second Admit was not granted after release")
	}
}

func TestBoundedConcurrencyCancel(t *testing.T) {
	c := NewBoundedConcurrency(1)

	held, err := c.Admit(context.Background())
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	p, err := c.Admit(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if p != nil {
		t.Fatal("expected nil permit on abandoned Admit")
	}

	// an already canceled context never gets a slot, even a free one
	held.Release()
	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if _, err := c.Admit(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}

	// the abandoned waiters did not leak the slot
	if c.InFlight() != 0 {
		t.Fatalf("expected no held slots, got %d", c.InFlight())
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	p, err = c.Admit(ctx2)
	if err != nil {
		t.Fatalf("Admit after abandoned waiters failed: %v", err)
	}
	p.Release()
}

func TestBoundedConcurrencyDoubleReleaseKeepsBound(t *testing.T) {
	c := NewBoundedConcurrency(2)

	p1, _ := c.Admit(context.Background())
	p2, _ := c.Admit(context.Background())
	p1.Release()
	p1.Release()

	if c.InFlight() != 1 {
		t.Fatalf("expected 1 held slot, got %d", c.InFlight())
	}
	p3, _ := c.Admit(context.Background())

	// both slots are held again, a further Admit must wait
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Admit(ctx); err == nil {
		t.Fatal("expected Admit to wait while both slots are held")
	}
	p2.Release()
	p3.Release()
}

// --------------------------------------------------------------------------
// Token bucket
// --------------------------------------------------------------------------

func TestTokenBucketStartsFull(t *testing.T) {
	b := NewTokenBucket(3, rate.Every(time.Hour))

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		p, err := b.Admit(ctx)
		cancel()
		if err != nil {
			t.Fatalf("Admit %d failed on a full bucket: %v", i, err)
		}
		p.Release()
	}

	// releasing does not return tokens, the bucket is empty now
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := b.Admit(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded on an empty bucket, got %v", err)
	}
}

func TestTokenBucketRefills(t *testing.T) {
	// 1 token every 20ms, one token initially
	b := NewTokenBucket(1, rate.Every(20*time.Millisecond))

	start := time.Now()
	for i := 0; i < 4; i++ {
		p, err := b.Admit(context.Background())
		if err != nil {
			t.Fatalf("Admit failed: %v", err)
		}
		p.Release()
	}
	elapsed := time.Since(start)

	// the first admission is immediate, the other three wait for a refill
	if elapsed < 50*time.Millisecond {
		t.Fatalf("expected admissions to be paced by the refill rate, took only %v", elapsed)
	}
}

func TestTokenBucketCancelReturnsReservation(t *testing.T) {
	b := NewTokenBucket(1, rate.Every(200*time.Millisecond))

	if _, err := b.Admit(context.Background()); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := b.Admit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected Canceled, got %v", err)
	}

	// without the returned reservation the bucket would owe a full token
	if tokens := b.Tokens(); tokens < -0.5 {
		t.Fatalf("expected the canceled reservation to be returned, tokens = %.2f", tokens)
	}
}

func TestTokenBucketCanceledContext(t *testing.T) {
	b := NewTokenBucket(5, rate.Limit(10))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if p, err := b.Admit(ctx); err == nil || p != nil {
		t.Fatalf("expected an error and no permit for a canceled context, got (%v, %v)", p, err)
	}
}

func TestTokenBucketSuspendsUntilDeadline(t *testing.T) {
	// the next token is due long after the deadline of the second caller
	b := NewTokenBucket(1, rate.Every(300*time.Millisecond))
	if _, err := b.Admit(context.Background()); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	p, err := b.Admit(ctx)
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) || p != nil {
		t.Fatalf("expected DeadlineExceeded and no permit, got (%v, %v)", p, err)
	}
	if elapsed < 80*time.Millisecond {
		t.Fatalf("expected Admit to wait for the deadline, returned after %v", elapsed)
	}
}
