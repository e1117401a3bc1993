package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func fastRetries(attempts int) Config {
	return Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func TestExecuteRetryPolicy(t *testing.T) {
	errFlaky := errors.New("model busy")
	errBadRequest := errors.New("bad prompt")

	cases := []struct {
		name         string
		failUntil    int
		err          error
		wantErr      error
		wantAttempts int
	}{
		{name: "temporary failure recovers", failUntil: 2, err: errFlaky, wantAttempts: 3},
		{name: "temporary failure exhausts attempts", failUntil: 10, err: errFlaky, wantErr: errFlaky, wantAttempts: 3},
		{name: "permanent failure stops at once", failUntil: 10, err: errBadRequest, wantErr: errBadRequest, wantAttempts: 1},
	}

	classify := func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errFlaky), RecordFailure: true}
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := NewExecutor(fastRetries(3), nil)
			attempts := 0
			err := exec.Execute(context.Background(), "extract", func(context.Context) error {
				attempts++
				if attempts <= tc.failUntil {
					return tc.err
				}
				return nil
			}, classify)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if attempts != tc.wantAttempts {
				t.Fatalf("expected %d attempts, got %d", tc.wantAttempts, attempts)
			}
		})
	}
}

func TestExecuteUsesOperationConfig(t *testing.T) {
	exec := NewExecutor(fastRetries(4), nil).WithOperationConfig("publish", fastRetries(1))

	errDown := errors.New("server down")
	retryAll := func(error) ErrorClassification {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}

	counts := map[string]int{}
	for _, op := range []string{"publish", "extract"} {
		_ = exec.Execute(context.Background(), op, func(context.Context) error {
			counts[op]++
			return errDown
		}, retryAll)
	}
	if counts["publish"] != 1 {
		t.Fatalf("expected publish override to allow 1 attempt, got %d", counts["publish"])
	}
	if counts["extract"] != 4 {
		t.Fatalf("expected default config to allow 4 attempts, got %d", counts["extract"])
	}
}

func TestConfigNormalizeFillsDefaults(t *testing.T) {
	cfg := Config{RetryInitialBackoff: 5 * time.Second, RetryMultiplier: 0.5, BreakerFailureRatio: 2}.normalize()
	def := DefaultConfig()

	if cfg.RetryMaxAttempts != def.RetryMaxAttempts {
		t.Fatalf("expected default attempts, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.RetryMaxBackoff != 5*time.Second {
		t.Fatalf("expected max backoff raised to initial backoff, got %s", cfg.RetryMaxBackoff)
	}
	if cfg.RetryMultiplier != def.RetryMultiplier || cfg.BreakerFailureRatio != def.BreakerFailureRatio {
		t.Fatalf("expected out-of-range values replaced, got %+v", cfg)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("breaker must stay disabled when not requested")
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &stateObserverFake{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, nil).WithStateObserver(observer)

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !IsCircuitOpen(err) {
		t.Fatalf("expected IsCircuitOpen to match %v", err)
	}

	if len(observer.states) != 2 || observer.states[1] != gobreaker.StateOpen {
		t.Fatalf("expected closed then open transitions, got %v", observer.states)
	}
	states := exec.States()
	if len(states) != 1 || states[0].Operation != "op" || states[0].State != "open" {
		t.Fatalf("unexpected breaker states: %+v", states)
	}
}

func TestExecuteDoesNotRetryCancelledContext(t *testing.T) {
	exec := NewExecutor(Config{RetryMaxAttempts: 3, RetryInitialBackoff: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := exec.Execute(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return context.Canceled
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

type stateObserverFake struct {
	states []gobreaker.State
}

func (f *stateObserverFake) ObserveBreakerState(_ string, state gobreaker.State) {
	f.states = append(f.states, state)
}
