package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), TransportRetryConfig(3), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Millisecond,
	}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("connection reset"), 0)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var calls int
	cfg := RetryConfig{
		MaxAttempts: 4,
		Delay:       1 * time.Millisecond,
	}

	last := NewTransientError(errors.New("i/o timeout"), 0)
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return last
	})
	if !errors.Is(err, last) {
		t.Fatalf("expected last error returned untouched, got %v", err)
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
}

func TestDo_NonTransientNotRetried(t *testing.T) {
	var calls int
	cfg := RetryConfig{MaxAttempts: 3, Delay: 1 * time.Millisecond}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("No Record Found")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	cfg := RetryConfig{MaxAttempts: 10, Delay: 50 * time.Millisecond}

	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("timeout"), 0)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call before cancellation took effect, got %d", calls)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 2, Delay: 1 * time.Millisecond}
	var calls int

	got, err := DoVal(context.Background(), cfg, func(_ context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", NewTransientError(errors.New("broken pipe"), 0)
		}
		return "token", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "token" {
		t.Errorf("expected %q, got %q", "token", got)
	}
}

func TestDoVal_CustomShouldRetry(t *testing.T) {
	retryable := errors.New("token rotated")
	cfg := RetryConfig{
		MaxAttempts: 3,
		Delay:       1 * time.Millisecond,
		ShouldRetry: func(err error) bool { return errors.Is(err, retryable) },
	}

	var calls int
	_, err := DoVal(context.Background(), cfg, func(_ context.Context) (int, error) {
		calls++
		return 0, retryable
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestComputeDelay_FixedWhenMultiplierOne(t *testing.T) {
	cfg := applyDefaults(RetryConfig{Delay: 10 * time.Millisecond, Multiplier: 1.0})
	for attempt := 0; attempt < 5; attempt++ {
		if d := computeDelay(attempt, cfg); d != 10*time.Millisecond {
			t.Errorf("attempt %d: expected fixed 10ms delay, got %v", attempt, d)
		}
	}
}

func TestComputeDelay_CappedAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		Delay:      1 * time.Second,
		MaxDelay:   2 * time.Second,
		Multiplier: 3.0,
	})
	if d := computeDelay(5, cfg); d > 2*time.Second {
		t.Errorf("expected delay capped at 2s, got %v", d)
	}
}
