package job

import "vmjobs/internal/webhook"

// outcomeStatus maps a step outcome onto the webhook status vocabulary.
func outcomeStatus(o Outcome) string {
	switch o {
	case OutcomeSuccess:
		return webhook.StatusSuccess
	case OutcomeWarning:
		return webhook.StatusWarning
	default:
		return webhook.StatusFailed
	}
}

// eventFor builds a webhook event about j.
func eventFor(j *Job, status, step, message string) webhook.Event {
	ev := webhook.NewEvent(j.Subject.Name, status, step, message)
	ev.JobID = j.ID
	ev.Kind = string(j.Kind)
	return ev
}

// stepEvent builds the event for a recorded step result.
func stepEvent(j *Job, r StepResult) webhook.Event {
	ev := eventFor(j, outcomeStatus(r.Outcome), r.Name, r.Message)
	ev.Timestamp = r.Timestamp
	return ev
}
