package health

import (
	"context"
	"errors"
	"testing"

	"flagkit/pkg/processor"
)

type stateFunc func() processor.State

func (f stateFunc) State() processor.State { return f() }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	if response := checker.Liveness(context.Background()); response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoChecks(t *testing.T) {
	t.Parallel()
	response := NewChecker().Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness(t *testing.T) {
	t.Parallel()
	ok := ReadinessFunc(func(context.Context) error { return nil })
	failing := ReadinessFunc(func(context.Context) error { return errors.New("redis: connection refused") })

	tests := []struct {
		name     string
		checks   []Check
		expected Status
		ready    bool
	}{
		{"all healthy", []Check{{Name: "processor", Checker: ok, Critical: true}, {Name: "store", Checker: ok}}, StatusHealthy, true},
		{"optional failure degrades", []Check{{Name: "processor", Checker: ok, Critical: true}, {Name: "store", Checker: failing}}, StatusDegraded, true},
		{"critical failure", []Check{{Name: "processor", Checker: failing, Critical: true}, {Name: "store", Checker: ok}}, StatusUnhealthy, false},
		{"nil checker", []Check{{Name: "processor", Critical: true}}, StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := NewChecker(tt.checks...).Readiness(context.Background())
			if response.Status != tt.expected {
				t.Errorf("expected %s, got %s (%+v)", tt.expected, response.Status, response.Checks)
			}
			if response.IsReady() != tt.ready {
				t.Errorf("IsReady() = %v, want %v", response.IsReady(), tt.ready)
			}
			if len(response.Checks) != len(tt.checks) {
				t.Errorf("expected %d check results, got %d", len(tt.checks), len(response.Checks))
			}
		})
	}
}

func TestProcessorReady(t *testing.T) {
	t.Parallel()
	state := processor.StateNew
	check := ProcessorReady(stateFunc(func() processor.State { return state }))

	if err := check.Ready(context.Background()); err == nil || err.Error() != "processor is new" {
		t.Errorf("expected new processor to be unready, got %v", err)
	}
	state = processor.StateRunning
	if err := check.Ready(context.Background()); err != nil {
		t.Errorf("expected running processor to be ready, got %v", err)
	}
}

func TestChecker_ShuttingDown(t *testing.T) {
	t.Parallel()
	ok := ReadinessFunc(func(context.Context) error { return nil })
	checker := NewChecker(Check{Name: "processor", Checker: ok, Critical: true})

	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("expected healthy before shutdown")
	}
	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.IsReady() {
		t.Error("expected readiness to fail while shutting down")
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("expected shutdown check in response")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
