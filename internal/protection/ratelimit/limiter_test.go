package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingStore struct{}

func (failingStore) Count(context.Context, string) (int64, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, error) {
	return 0, errors.New("store down")
}

func TestCheck_AllowsUntilCeiling(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "test:")
	ctx := context.Background()

	const max = 3
	window := time.Minute

	for i := 0; i < max; i++ {
		result := limiter.Check(ctx, "1.2.3.4", max, window)
		if !result.Allowed {
			t.Fatalf("attempt %d denied below the ceiling", i+1)
		}
		if result.Remaining != max-i {
			t.Fatalf("attempt %d reported %d remaining, want %d", i+1, result.Remaining, max-i)
		}
		limiter.Increment(ctx, "1.2.3.4", window)
	}

	result := limiter.Check(ctx, "1.2.3.4", max, window)
	if result.Allowed {
		t.Fatal("attempt at the ceiling should be denied")
	}
	if result.Remaining != 0 {
		t.Fatalf("denied check reported %d remaining, want 0", result.Remaining)
	}
}

func TestCheck_DoesNotConsumeBudget(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "test:")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		limiter.Check(ctx, "1.2.3.4", 1, time.Minute)
	}

	result := limiter.Check(ctx, "1.2.3.4", 1, time.Minute)
	if !result.Allowed {
		t.Fatal("repeated checks consumed window budget")
	}
}

func TestCheck_WindowResets(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "test:")
	ctx := context.Background()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	limiter.Increment(ctx, "1.2.3.4", time.Minute)
	if result := limiter.Check(ctx, "1.2.3.4", 1, time.Minute); result.Allowed {
		t.Fatal("ceiling of one should deny after a single increment")
	}

	current = current.Add(61 * time.Second)

	if result := limiter.Check(ctx, "1.2.3.4", 1, time.Minute); !result.Allowed {
		t.Fatal("expired window should admit again")
	}
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "test:")
	ctx := context.Background()

	limiter.Increment(ctx, "1.2.3.4", time.Minute)

	if result := limiter.Check(ctx, "5.6.7.8", 1, time.Minute); !result.Allowed {
		t.Fatal("unrelated key was denied")
	}
}

func TestCheck_FailsOpenOnStoreError(t *testing.T) {
	limiter := New(failingStore{}, "test:")

	result := limiter.Check(context.Background(), "1.2.3.4", 1, time.Minute)
	if !result.Allowed {
		t.Fatal("store outage must fail open, not deny registrations")
	}
}

func TestResult_ResetAtReflectsWindow(t *testing.T) {
	store := NewMemoryStore()
	limiter := New(store, "test:")
	ctx := context.Background()

	before := time.Now()
	limiter.Increment(ctx, "1.2.3.4", time.Minute)
	result := limiter.Check(ctx, "1.2.3.4", 5, time.Minute)

	if result.ResetAt.Before(before) {
		t.Fatalf("reset time %s lies in the past", result.ResetAt)
	}
	if result.ResetAt.After(before.Add(2 * time.Minute)) {
		t.Fatalf("reset time %s exceeds the window", result.ResetAt)
	}
}
