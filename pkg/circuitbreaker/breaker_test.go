package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func testConfig() Config {
	cfg := DefaultConfig("test")
	cfg.FailureThreshold = 3
	cfg.MinRequests = 100 // force the consecutive-failure path
	cfg.Timeout = time.Hour // stay open for the duration of the test
	return cfg
}

func TestExecuteSuccess(t *testing.T) {
	cb, err := New(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %v", result)
	}
	if !cb.IsClosed() {
		t.Error("breaker should stay closed after success")
	}
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	cb, err := New(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("oracle unreachable")
	for i := 0; i < 3; i++ {
		if _, err := cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		}); !errors.Is(err, boom) {
			t.Fatalf("attempt %d: expected boom, got %v", i, err)
		}
	}

	if !cb.IsOpen() {
		t.Fatal("breaker should be open after threshold failures")
	}

	_, err = cb.Execute(context.Background(), func() (interface{}, error) {
		t.Error("function must not run while the circuit is open")
		return nil, nil
	})
	if err != gobreaker.ErrOpenState {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
}

func TestExecuteWithFallbackOnOpen(t *testing.T) {
	cb, err := New(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("oracle unreachable")
	for i := 0; i < 3; i++ {
		cb.Execute(context.Background(), func() (interface{}, error) {
			return nil, boom
		})
	}

	result, err := cb.ExecuteWithFallback(context.Background(),
		func() (interface{}, error) { return nil, errors.New("should not run") },
		func(error) (interface{}, error) { return "fallback", nil })
	if err != nil {
		t.Fatalf("fallback path errored: %v", err)
	}
	if result != "fallback" {
		t.Errorf("expected fallback result, got %v", result)
	}
}

func TestFallbackNotUsedForOrdinaryFailure(t *testing.T) {
	cb, err := New(testConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("bad response")
	_, err = cb.ExecuteWithFallback(context.Background(),
		func() (interface{}, error) { return nil, boom },
		func(error) (interface{}, error) { return "fallback", nil })
	if !errors.Is(err, boom) {
		t.Errorf("ordinary failures must surface, got %v", err)
	}
}
