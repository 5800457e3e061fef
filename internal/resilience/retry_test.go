package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", status.Error(codes.Unavailable, "connection refused")
		}
		return "hello", nil
	})
	if err != nil || got != "hello" {
		t.Errorf("Retry() = (%q, %v)", got, err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhausts(t *testing.T) {
	calls := 0
	want := status.Error(codes.ResourceExhausted, "busy")
	_, err := Retry(context.Background(), fastRetry(2), func(context.Context) (int, error) {
		calls++
		return 0, want
	})
	if !errors.Is(err, want) {
		t.Errorf("Retry() = %v, want %v", err, want)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetrySkipsPermanentErrors(t *testing.T) {
	tests := []error{
		status.Error(codes.Internal, "model crashed"),
		status.Error(codes.DeadlineExceeded, "slow"),
		status.Error(codes.InvalidArgument, "bad audio"),
		errors.New("plain"),
	}
	for _, e := range tests {
		calls := 0
		_, _ = Retry(context.Background(), fastRetry(3), func(context.Context) (int, error) {
			calls++
			return 0, e
		})
		if calls != 1 {
			t.Errorf("%v: calls = %d, want 1", e, calls)
		}
	}
}

func TestRetryRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: time.Second}
	calls := 0
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := Retry(ctx, cfg, func(context.Context) (int, error) {
		calls++
		return 0, status.Error(codes.Unavailable, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBackoffDelayBounded(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, JitterFactor: 0.2}
	for attempt := 0; attempt < 10; attempt++ {
		d := backoffDelay(cfg, attempt)
		if d < 0 || d > 1100*time.Millisecond {
			t.Errorf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
