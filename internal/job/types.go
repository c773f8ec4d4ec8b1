package job

import (
	"maps"
	"slices"
	"time"
)

// Kind identifies a workflow.
type Kind string

const (
	KindClone       Kind = "clone"
	KindDeleteBatch Kind = "delete_batch"
	KindProvision   Kind = "provision"
)

// State of a job. Completed and Failed are terminal.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Outcome classifies a single step attempt.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeWarning Outcome = "warning"
	OutcomeFailure Outcome = "failure"
)

// StepResult records one attempted step.
type StepResult struct {
	Name      string    `json:"name"`
	Outcome   Outcome   `json:"outcome"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject is the cloud resource a job acts on.
type Subject struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Job is the mutable record owned by exactly one orchestrator run.
// Everything else sees it through Snapshot.
type Job struct {
	ID         string
	Kind       Kind
	Subject    Subject
	HookURL    string
	StatusURL  string
	State      State
	Steps      []StepResult
	Outputs    map[string]any
	Error      string
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Snapshot is the read-only view served to pollers and persisted by stores.
type Snapshot struct {
	ID         string         `json:"job_id"`
	Kind       Kind           `json:"kind"`
	State      State          `json:"state"`
	Subject    Subject        `json:"subject"`
	Steps      []StepResult   `json:"steps"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	StatusURL  string         `json:"status_url"`
	CreatedAt  time.Time      `json:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// Snapshot copies the job so later appends are invisible to the copy.
// Output values are stored once and never mutated, so a shallow map copy suffices.
func (j *Job) Snapshot() *Snapshot {
	s := &Snapshot{
		ID:        j.ID,
		Kind:      j.Kind,
		State:     j.State,
		Subject:   Subject{Name: j.Subject.Name, Attributes: maps.Clone(j.Subject.Attributes)},
		Steps:     slices.Clone(j.Steps),
		Outputs:   maps.Clone(j.Outputs),
		Error:     j.Error,
		StatusURL: j.StatusURL,
		CreatedAt: j.CreatedAt,
	}
	if s.Steps == nil {
		s.Steps = []StepResult{}
	}
	if !j.StartedAt.IsZero() {
		t := j.StartedAt
		s.StartedAt = &t
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		s.FinishedAt = &t
	}
	return s
}

// LastStep returns the most recent step result, if any.
func (s *Snapshot) LastStep() (StepResult, bool) {
	if len(s.Steps) == 0 {
		return StepResult{}, false
	}
	return s.Steps[len(s.Steps)-1], true
}

// Duration is the wall time between start and finish (or now, while running).
func (s *Snapshot) Duration() time.Duration {
	if s.StartedAt == nil {
		return 0
	}
	if s.FinishedAt == nil {
		return time.Since(*s.StartedAt)
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// advance moves the job forward. Terminal states are absorbing.
func (j *Job) advance(to State, at time.Time) bool {
	if j.State.Terminal() {
		return false
	}
	switch {
	case to == StateRunning && j.State == StatePending:
		j.StartedAt = at
	case to.Terminal() && j.State == StateRunning:
		j.FinishedAt = at
	case to.Terminal() && j.State == StatePending:
		j.StartedAt, j.FinishedAt = at, at
	default:
		return false
	}
	j.State = to
	return true
}

func (j *Job) setOutput(key string, value any) {
	if j.Outputs == nil {
		j.Outputs = make(map[string]any)
	}
	j.Outputs[key] = value
}
