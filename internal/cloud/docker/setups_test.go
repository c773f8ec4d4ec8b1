package docker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"vmjobs/internal/apperrors"
)

func TestSetupRepo_Reserve(t *testing.T) {
	t.Parallel()
	repo := newSetupRepo()

	if err := repo.reserve("c-1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	execID, exists := repo.get("c-1")
	if !exists {
		t.Error("Expected container to be tracked after reserve")
	}
	if execID != "" {
		t.Errorf("Expected empty exec ID while starting, got %q", execID)
	}
}

func TestSetupRepo_ReserveTwice(t *testing.T) {
	t.Parallel()
	repo := newSetupRepo()

	if err := repo.reserve("c-1"); err != nil {
		t.Fatalf("First reserve failed: %v", err)
	}
	err := repo.reserve("c-1")
	if !errors.Is(err, apperrors.ErrConflict) {
		t.Errorf("Expected conflict, got %v", err)
	}

	repo.commit("c-1", "exec-1")
	if err := repo.reserve("c-1"); err == nil {
		t.Error("Expected error for reserve after commit")
	}
}

func TestSetupRepo_CommitAndRelease(t *testing.T) {
	t.Parallel()
	repo := newSetupRepo()

	_ = repo.reserve("c-1")
	repo.commit("c-1", "exec-1")

	if execID, _ := repo.get("c-1"); execID != "exec-1" {
		t.Errorf("Expected exec-1, got %q", execID)
	}

	execID, existed := repo.release("c-1")
	if !existed || execID != "exec-1" {
		t.Errorf("Expected release to return exec-1, got %q (existed=%v)", execID, existed)
	}
	if _, exists := repo.get("c-1"); exists {
		t.Error("Expected container to be forgotten after release")
	}
	if _, existed := repo.release("c-1"); existed {
		t.Error("Expected second release to report nothing")
	}
	if err := repo.reserve("c-1"); err != nil {
		t.Errorf("Expected reserve after release to succeed, got %v", err)
	}
}

func TestSetupRepo_ConcurrentReserve(t *testing.T) {
	t.Parallel()
	repo := newSetupRepo()

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.reserve("c-1") == nil {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Errorf("Expected exactly one successful reserve, got %d", got)
	}
}
