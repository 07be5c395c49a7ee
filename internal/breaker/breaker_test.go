package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	now := time.Now()
	b := New("orbital_service", Config{WindowFailures: 5, Window: 10 * time.Second, Refresh: 30 * time.Second, Fallback: FallbackError})
	b.now = func() time.Time { return now }

	failing := func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded }

	for i := 0; i < 5; i++ {
		_, err := b.Call(context.Background(), failing)
		if err == nil {
			t.Fatalf("call %d: expected timeout error", i)
		}
	}

	if b.State() != Open {
		t.Fatalf("state after 5 timeouts = %v, want Open", b.State())
	}

	calls := 0
	_, err := b.Call(context.Background(), func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("6th call error = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Fatal("fn must not run while breaker is open")
	}
}

func TestBreakerRefreshesAfterTimeout(t *testing.T) {
	now := time.Now()
	b := New("orbital_service", Config{WindowFailures: 1, Window: time.Second, Refresh: 30 * time.Second, Fallback: FallbackError})
	b.now = func() time.Time { return now }

	b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })
	if b.State() != Open {
		t.Fatal("expected open after single tripping failure")
	}

	now = now.Add(31 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("state after refresh window = %v, want HalfOpen", b.State())
	}

	ran := false
	_, err := b.Call(context.Background(), func(ctx context.Context) (any, error) { ran = true; return "ok", nil })
	if err != nil || !ran {
		t.Fatalf("half-open probe should run: ran=%v err=%v", ran, err)
	}
	if b.State() != Closed {
		t.Fatalf("state after successful probe = %v, want Closed", b.State())
	}
}

func TestBreakerNonTrippingErrorPassesThrough(t *testing.T) {
	b := New("orbital_service", DefaultConfig())
	custom := errors.New("validation failed")

	for i := 0; i < 10; i++ {
		_, err := b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, custom })
		if !errors.Is(err, custom) {
			t.Fatalf("call %d: got %v, want custom error unchanged", i, err)
		}
	}
	if b.State() != Closed {
		t.Fatal("non-tripping errors must never open the breaker")
	}
}

func TestBreakerExceptionAlwaysTrips(t *testing.T) {
	b := New("orbital_service", Config{WindowFailures: 1, Window: time.Minute, Refresh: time.Minute, Fallback: FallbackError})
	_, err := b.Call(context.Background(), func(ctx context.Context) (any, error) { panic("boom") })
	if err == nil {
		t.Fatal("expected recovered panic to surface as an error")
	}
	if b.State() != Open {
		t.Fatal("a panic must always trip the breaker")
	}
}

func TestFallbackSkip(t *testing.T) {
	b := New("x", Config{WindowFailures: 1, Window: time.Minute, Refresh: time.Hour, Fallback: FallbackSkip})
	b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })

	result, err := b.Call(context.Background(), func(ctx context.Context) (any, error) { return "unused", nil })
	if err != nil || result != nil {
		t.Fatalf("skip fallback should return (nil, nil), got (%v, %v)", result, err)
	}
}

func TestFallbackCachedOrError(t *testing.T) {
	b := New("x", Config{WindowFailures: 1, Window: time.Minute, Refresh: time.Hour, Fallback: FallbackCachedOrError})

	b.Call(context.Background(), func(ctx context.Context) (any, error) { return "cached-value", nil })
	b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })

	result, err := b.Call(context.Background(), func(ctx context.Context) (any, error) { return "unused", nil })
	if err != nil || result != "cached-value" {
		t.Fatalf("cached_or_error fallback = (%v, %v), want (cached-value, nil)", result, err)
	}
}

func TestRegistryLazyCreatesAndConfigures(t *testing.T) {
	r := NewRegistry()
	r.Configure("orbital_service", Config{WindowFailures: 2, Window: time.Second, Refresh: time.Minute, Fallback: FallbackError})

	b := r.Get("orbital_service")
	b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })
	b.Call(context.Background(), func(ctx context.Context) (any, error) { return nil, context.DeadlineExceeded })

	status, ok := r.Status("orbital_service")
	if !ok || status.State != Open {
		t.Fatalf("status = %+v (ok=%v), want Open", status, ok)
	}

	if !r.Reset("orbital_service") {
		t.Fatal("reset should find the breaker")
	}
	status, _ = r.Status("orbital_service")
	if status.State != Closed {
		t.Fatalf("state after reset = %v, want Closed", status.State)
	}
}
