package testutil

import (
	"bytes"
	"net/http"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	if !WaitFor(t, func() bool { return true }, WithTimeout(time.Second)) {
		t.Error("expected WaitFor to return true for immediate success")
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	counter := 0
	result := WaitFor(t, func() bool {
		counter++
		return counter >= 3
	}, WithTimeout(time.Second), WithInterval(time.Millisecond))

	if !result {
		t.Error("expected WaitFor to return true for eventual success")
	}
	if counter < 3 {
		t.Errorf("expected counter >= 3, got %d", counter)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	start := time.Now()
	result := WaitFor(t, func() bool { return false }, WithTimeout(50*time.Millisecond))

	if result {
		t.Error("expected WaitFor to return false on timeout")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, before the timeout", elapsed)
	}
}

func TestMustPoll_ReturnsValue(t *testing.T) {
	t.Parallel()
	n := 0
	got := MustPoll(t, func() (int, bool) {
		n++
		return n, n == 4
	}, WithInterval(time.Millisecond))

	if got != 4 {
		t.Errorf("MustPoll() = %d, want 4", got)
	}
}

func TestWebhookRecorder(t *testing.T) {
	t.Parallel()
	rec := NewWebhookRecorder(t)
	rec.FailNext(1, http.StatusServiceUnavailable)

	post := func() int {
		body := []byte(`{"vm_name":"vm-1","status":"success","timestamp":"2024-01-01T00:00:00Z","details":{"step":"get_vm","message":"ok"}}`)
		resp, err := http.Post(rec.URL, "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post(); code != http.StatusServiceUnavailable {
		t.Errorf("first response = %d, want 503", code)
	}
	if code := post(); code != http.StatusOK {
		t.Errorf("second response = %d, want 200", code)
	}

	if rec.Requests() != 2 {
		t.Errorf("Requests() = %d, want 2", rec.Requests())
	}
	events := rec.Events()
	if len(events) != 1 {
		t.Fatalf("Events() len = %d, want 1", len(events))
	}
	if events[0].Subject() != "vm-1" || events[0].Details.Step != "get_vm" {
		t.Errorf("unexpected event %+v", events[0])
	}
}
