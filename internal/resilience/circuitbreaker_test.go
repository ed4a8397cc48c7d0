package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errProvider = errors.New("provider down")

func failing(ctx context.Context) (int, error) { return 0, errProvider }
func succeeding(ctx context.Context) (int, error) { return 1, nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("polygon", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := ExecuteWithResult(ctx, cb, failing); !errors.Is(err, errProvider) {
			t.Fatalf("attempt %d: error = %v, want provider error", i, err)
		}
	}
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	calls := 0
	_, err := ExecuteWithResult(ctx, cb, func(ctx context.Context) (int, error) {
		calls++
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if calls != 0 {
		t.Errorf("function called %d times while open", calls)
	}
	if got := cb.Stats().TotalRejected; got != 1 {
		t.Errorf("TotalRejected = %d, want 1", got)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker("yahoo", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }

	var transitions []CircuitState
	cb.OnStateChange = func(name string, from, to CircuitState) {
		transitions = append(transitions, to)
	}

	ctx := context.Background()
	_, _ = ExecuteWithResult(ctx, cb, failing)
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	now = now.Add(2 * time.Second)
	if v, err := ExecuteWithResult(ctx, cb, succeeding); err != nil || v != 1 {
		t.Fatalf("ExecuteWithResult() = %v, %v", v, err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}

	want := []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitClosed}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_CancellationNotCounted(t *testing.T) {
	cb := NewCircuitBreaker("polygon", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ExecuteWithResult(ctx, cb, func(ctx context.Context) (int, error) {
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker("polygon", CircuitBreakerConfig{FailureThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_, _ = ExecuteWithResult(ctx, cb, failing)
	_, _ = ExecuteWithResult(ctx, cb, succeeding)
	_, _ = ExecuteWithResult(ctx, cb, failing)

	if cb.State() != CircuitClosed {
		t.Errorf("state = %s, want CLOSED", cb.State())
	}
	if got := cb.Stats().CurrentFailures; got != 1 {
		t.Errorf("CurrentFailures = %d, want 1", got)
	}
}
