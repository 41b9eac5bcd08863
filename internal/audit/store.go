package audit

import (
	"context"
	"sync"

	id "corecompliance/pkg/domain"
)

// Store is the audit sink. Append-only; nothing ever updates or deletes an
// event.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByRecord(ctx context.Context, recordID id.RecordID) ([]Event, error)
}

// InMemoryStore keeps events in a slice for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *InMemoryStore) ListByRecord(_ context.Context, recordID id.RecordID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, event := range s.events {
		if event.RecordID == recordID {
			out = append(out, event)
		}
	}
	return out, nil
}
