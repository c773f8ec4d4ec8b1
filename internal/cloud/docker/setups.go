package docker

import (
	"sync"

	"vmjobs/internal/apperrors"
)

// setupRepo tracks the setup exec started in each container so a VM is never
// handed to two agents.
type setupRepo struct {
	mu    sync.RWMutex
	execs map[string]string // container ID -> exec ID, "" while starting
}

func newSetupRepo() *setupRepo {
	return &setupRepo{execs: make(map[string]string)}
}

// reserve claims the container. It fails if a setup is starting or running.
func (r *setupRepo) reserve(containerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.execs[containerID]; exists {
		return apperrors.Conflict("setup", "setup already started for container "+containerID)
	}
	r.execs[containerID] = ""
	return nil
}

// commit records the exec that runs the setup.
func (r *setupRepo) commit(containerID, execID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.execs[containerID] = execID
}

// release forgets the container.
func (r *setupRepo) release(containerID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execID, exists := r.execs[containerID]
	if exists {
		delete(r.execs, containerID)
	}
	return execID, exists
}

// get returns the exec ID; ("", true) means reserved but not yet started.
func (r *setupRepo) get(containerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execID, exists := r.execs[containerID]
	return execID, exists
}
