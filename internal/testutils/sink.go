package testutils

import (
	"sync"
	"time"

	"chat-client/internal/models"
)

// RecordingSink collects emitted events.
type RecordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *RecordingSink) Emit(e models.Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func (s *RecordingSink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

// OfKind returns the events of one kind, in emission order.
func (s *RecordingSink) OfKind(kind models.EventKind) []models.Event {
	var out []models.Event
	for _, e := range s.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// States returns the State of every health event.
func (s *RecordingSink) States() []string {
	var out []string
	for _, e := range s.OfKind(models.EventHealth) {
		out = append(out, e.State)
	}
	return out
}

// WaitFor polls until cond holds or timeout elapses.
func WaitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
