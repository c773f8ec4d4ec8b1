package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vmjobs/internal/webhook"
)

// WebhookRecorder is a callback endpoint that records every event it receives.
type WebhookRecorder struct {
	*httptest.Server

	mu       sync.Mutex
	events   []webhook.Event
	requests int
	failures []int // statuses to answer with before accepting again
}

// NewWebhookRecorder starts a recorder that is closed when the test ends.
func NewWebhookRecorder(tb testing.TB) *WebhookRecorder {
	tb.Helper()
	r := &WebhookRecorder{}
	r.Server = httptest.NewServer(http.HandlerFunc(r.handle))
	tb.Cleanup(r.Close)
	return r
}

func (r *WebhookRecorder) handle(w http.ResponseWriter, req *http.Request) {
	var ev webhook.Event
	decodeErr := json.NewDecoder(req.Body).Decode(&ev)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	if len(r.failures) > 0 {
		status := r.failures[0]
		r.failures = r.failures[1:]
		w.WriteHeader(status)
		return
	}
	if decodeErr != nil {
		http.Error(w, decodeErr.Error(), http.StatusBadRequest)
		return
	}
	r.events = append(r.events, ev)
	w.WriteHeader(http.StatusOK)
}

// FailNext answers the next n requests with status.
func (r *WebhookRecorder) FailNext(n, status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for range n {
		r.failures = append(r.failures, status)
	}
}

// Events returns the accepted events in arrival order.
func (r *WebhookRecorder) Events() []webhook.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]webhook.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Requests counts every request, accepted or not.
func (r *WebhookRecorder) Requests() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests
}

// Last returns the most recent accepted event.
func (r *WebhookRecorder) Last() (webhook.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return webhook.Event{}, false
	}
	return r.events[len(r.events)-1], true
}
