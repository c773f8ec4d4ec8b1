// Package webhook delivers job progress events to caller-supplied callback URLs.
package webhook

import "time"

// Status values carried in Event.Status.
const (
	StatusProvisioning = "provisioning"
	StatusDeleting     = "deleting"
	StatusCompleted    = "completed"
	StatusFailed       = "failed"
	StatusSuccess      = "success"
	StatusWarning      = "warning"
)

// Event is the JSON document POSTed to a callback URL.
type Event struct {
	VMName    *string   `json:"vm_name"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Details   Details   `json:"details"`
	JobID     string    `json:"job_id,omitempty"`
	Kind      string    `json:"kind,omitempty"`
}

// Details names the step an event reports on.
type Details struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// NewEvent builds an event stamped with the current UTC time.
// An empty subject is encoded as a JSON null vm_name.
func NewEvent(subject, status, step, message string) Event {
	ev := Event{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Details:   Details{Step: step, Message: message},
	}
	if subject != "" {
		ev.VMName = &subject
	}
	return ev
}

// Subject returns the vm_name, or "" when it is null.
func (e Event) Subject() string {
	if e.VMName == nil {
		return ""
	}
	return *e.VMName
}
