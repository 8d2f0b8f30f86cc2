package storetest

import (
	"context"
	"errors"
	"fmt"
	"github.com/ValentinKolb/kvgate/lib/store"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// StoreFactory is a function that creates a new, empty instance of an IStore implementation
type StoreFactory func(t testing.TB) store.IStore

// RunStoreTests runs a comprehensive test suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("RoundTrip", func(t *testing.T) {
			testRoundTrip(t, factory(t))
		})

		t.Run("Uniqueness", func(t *testing.T) {
			testUniqueness(t, factory(t))
		})

		t.Run("NotFound", func(t *testing.T) {
			testNotFound(t, factory(t))
		})

		t.Run("Scenario", func(t *testing.T) {
			testScenario(t, factory(t))
		})

		t.Run("ConcurrentPutRace", func(t *testing.T) {
			testConcurrentPutRace(t, factory(t))
		})

		t.Run("ConcurrentDistinctKeys", func(t *testing.T) {
			testConcurrentDistinctKeys(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testRoundTrip(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("round-trip-%d", i)
		value := fmt.Sprintf("value-%d", i)

		if err := s.Put(ctx, key, value); err != nil {
			t.Fatalf("Put(%s) failed: %v", key, err)
		}

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get(%s) failed: %v", key, err)
		}
		if got != value {
			t.Errorf("Expected value %q for key %s, got %q", value, key, got)
		}
	}
}

func testUniqueness(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "unique", "v1"); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}

	// a second put must be rejected, whatever the value
	for _, v := range []string{"v2", "v1", ""} {
		err := s.Put(ctx, "unique", v)
		if !errors.Is(err, store.ErrKeyAlreadyExists) {
			t.Errorf("Expected ErrKeyAlreadyExists for second Put with value %q, got: %v", v, err)
		}
		if store.CodeOf(err) != store.RetCKeyAlreadyExists {
			t.Errorf("Expected code %s, got %s", store.RetCKeyAlreadyExists, store.CodeOf(err))
		}
	}

	got, err := s.Get(ctx, "unique")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v1" {
		t.Errorf("Expected the first value to be kept, got %q", got)
	}
}

func testNotFound(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for _, key := range []string{"never-written", "b", strings.Repeat("x", 200)} {
		_, err := s.Get(ctx, key)
		if !errors.Is(err, store.ErrKeyNotFound) {
			t.Errorf("Expected ErrKeyNotFound for %q, got: %v", key, err)
		}
	}

	if err := s.Put(ctx, "present", "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := s.Get(ctx, "Present"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Errorf("Expected keys to be case sensitive, got: %v", err)
	}
}

func testScenario(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Put(ctx, "a", "1"); err != nil {
		t.Fatalf("put(a,1) failed: %v", err)
	}
	if err := s.Put(ctx, "a", "2"); !errors.Is(err, store.ErrKeyAlreadyExists) {
		t.Fatalf("put(a,2): expected ErrKeyAlreadyExists, got %v", err)
	}
	if got, err := s.Get(ctx, "a"); err != nil || got != "1" {
		t.Fatalf("get(a): expected (1, nil), got (%q, %v)", got, err)
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, store.ErrKeyNotFound) {
		t.Fatalf("get(b): expected ErrKeyNotFound, got %v", err)
	}
}

func testConcurrentPutRace(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	for _, m := range []int{2, 8, 32} {
		key := fmt.Sprintf("race-%d", m)

		var wg sync.WaitGroup
		var successes, conflicts, others atomic.Int64
		var winner atomic.Value

		start := make(chan struct{})
		for i := 0; i < m; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				<-start
				value := fmt.Sprintf("writer-%d", i)
				err := s.Put(ctx, key, value)
				switch {
				case err == nil:
					successes.Add(1)
					winner.Store(value)
				case errors.Is(err, store.ErrKeyAlreadyExists):
					conflicts.Add(1)
				default:
					others.Add(1)
					t.Errorf("unexpected error from concurrent Put: %v", err)
				}
			}(i)
		}
		close(start)
		wg.Wait()

		if successes.Load() != 1 {
			t.Errorf("M=%d: expected exactly one successful Put, got %d", m, successes.Load())
		}
		if conflicts.Load() != int64(m-1) {
			t.Errorf("M=%d: expected %d conflicts, got %d (others: %d)", m, m-1, conflicts.Load(), others.Load())
		}

		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get after race failed: %v", err)
		}
		if w, _ := winner.Load().(string); got != w {
			t.Errorf("M=%d: expected stored value to be the winner's %q, got %q", m, w, got)
		}
	}
}

func testConcurrentDistinctKeys(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	const workers = 8
	const perWorker = 25

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("distinct-%d-%d", w, i)
				if err := s.Put(ctx, key, key); err != nil {
					t.Errorf("Put(%s) failed: %v", key, err)
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("distinct-%d-%d", w, i)
			if got, err := s.Get(ctx, key); err != nil || got != key {
				t.Errorf("Get(%s): expected (%q, nil), got (%q, %v)", key, key, got, err)
			}
		}
	}
}

func testEdgeCases(t *testing.T, s store.IStore) {
	defer s.Close()
	ctx := context.Background()

	cases := map[string]string{
		"":              "empty-key",
		"empty-value":   "",
		"unicode-ключ":  "значение ✓",
		"spaces in key": "  padded  ",
		"quote'key":     `va"lue`,
		"large-value":   strings.Repeat("0123456789", 10*1024),
		"newline-value": "line1\nline2",
	}

	for k, v := range cases {
		if err := s.Put(ctx, k, v); err != nil {
			t.Errorf("Put(%q) failed: %v", k, err)
			continue
		}
		got, err := s.Get(ctx, k)
		if err != nil {
			t.Errorf("Get(%q) failed: %v", k, err)
			continue
		}
		if got != v {
			t.Errorf("Value mismatch for %q: expected %d bytes, got %d bytes", k, len(v), len(got))
		}
	}
}

func testClosed(t *testing.T, s store.IStore) {
	ctx := context.Background()

	if err := s.Put(ctx, "before-close", "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := s.Put(ctx, "after-close", "x"); !errors.Is(err, store.ErrBackingStoreUnavailable) {
		t.Errorf("Expected ErrBackingStoreUnavailable for Put on closed store, got: %v", err)
	}
	if _, err := s.Get(ctx, "before-close"); !errors.Is(err, store.ErrBackingStoreUnavailable) {
		t.Errorf("Expected ErrBackingStoreUnavailable for Get on closed store, got: %v", err)
	}
}
