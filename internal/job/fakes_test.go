package job

import (
	"context"
	"sort"
	"sync"

	"vmjobs/internal/apperrors"
	"vmjobs/internal/webhook"
)

type fakeStore struct {
	mu    sync.Mutex
	jobs  map[string]*Snapshot
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: make(map[string]*Snapshot)}
}

func (s *fakeStore) Create(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[snap.ID]; ok {
		return apperrors.Conflict("job", "job already exists")
	}
	s.jobs[snap.ID] = snap
	return nil
}

func (s *fakeStore) Save(_ context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.jobs[snap.ID] = snap
	return nil
}

func (s *fakeStore) Get(_ context.Context, id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NotFound("job", id)
	}
	return snap, nil
}

func (s *fakeStore) List(_ context.Context) ([]*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Snapshot, 0, len(s.jobs))
	for _, snap := range s.jobs {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	return out, nil
}

func (s *fakeStore) Ping(context.Context) error { return nil }

type sentEvent struct {
	url string
	ev  webhook.Event
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []sentEvent
	result bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{result: true}
}

func (n *fakeNotifier) Notify(_ context.Context, url string, ev webhook.Event) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, sentEvent{url: url, ev: ev})
	return n.result
}

func (n *fakeNotifier) sent() []webhook.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]webhook.Event, len(n.events))
	for i, e := range n.events {
		out[i] = e.ev
	}
	return out
}

// steps returns the details.step of each event, in delivery order.
func (n *fakeNotifier) steps() []string {
	var out []string
	for _, ev := range n.sent() {
		out = append(out, ev.Details.Step)
	}
	return out
}
