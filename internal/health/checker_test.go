package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoDependencies(t *testing.T) {
	t.Parallel()
	checker := NewChecker()

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
	if _, ok := response.Checks["dependencies"]; !ok {
		t.Fatal("Expected dependencies check to be present")
	}
}

func TestChecker_Readiness_NilCheck(t *testing.T) {
	t.Parallel()
	checker := NewChecker(Dependency{Name: "cloud"})

	response := checker.Readiness(context.Background())

	cloudCheck, ok := response.Checks["cloud"]
	if !ok {
		t.Fatal("Expected cloud check to be present")
	}
	if cloudCheck.Status != StatusUnhealthy {
		t.Errorf("Expected cloud check to be unhealthy, got %s", cloudCheck.Status)
	}
	if cloudCheck.Message != "cloud not configured" {
		t.Errorf("Unexpected message %q", cloudCheck.Message)
	}
}

func TestChecker_Readiness_Statuses(t *testing.T) {
	t.Parallel()
	ok := CheckFunc(func(context.Context) error { return nil })
	down := CheckFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name  string
		deps  []Dependency
		want  Status
		ready bool
	}{
		{"all healthy", []Dependency{{Name: "cloud", Check: ok}, {Name: "store", Check: ok}}, StatusHealthy, true},
		{"required down", []Dependency{{Name: "cloud", Check: down}, {Name: "store", Check: ok}}, StatusUnhealthy, false},
		{"optional down", []Dependency{{Name: "cloud", Check: ok}, {Name: "store", Check: down, Optional: true}}, StatusDegraded, true},
		{"both down", []Dependency{{Name: "cloud", Check: down}, {Name: "store", Check: down, Optional: true}}, StatusUnhealthy, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := NewChecker(tt.deps...).Readiness(context.Background())
			if response.Status != tt.want {
				t.Errorf("Status = %s, want %s", response.Status, tt.want)
			}
			if response.IsReady() != tt.ready {
				t.Errorf("IsReady() = %v, want %v", response.IsReady(), tt.ready)
			}
			if len(response.Checks) != len(tt.deps) {
				t.Errorf("got %d checks, want %d", len(response.Checks), len(tt.deps))
			}
		})
	}
}

func TestChecker_Readiness_Cached(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	checker := NewChecker(Dependency{Name: "cloud", Check: CheckFunc(func(context.Context) error {
		calls.Add(1)
		return nil
	})})

	for range 5 {
		checker.Readiness(context.Background())
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("Expected one backend call within the cache window, got %d", got)
	}
}

func TestChecker_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(Dependency{Name: "cloud", Check: CheckFunc(func(context.Context) error { return nil })})
	if !checker.Readiness(context.Background()).IsHealthy() {
		t.Fatal("Expected healthy before shutdown")
	}

	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy after shutdown, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check")
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
