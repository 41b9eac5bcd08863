package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "corecompliance/pkg/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublisher_EmitQueuesAndStampsTime(t *testing.T) {
	publisher, inbox := NewPublisher(2, discardLogger())

	recordID := id.RecordID(uuid.New())
	publisher.Emit(context.Background(), Event{Kind: KindFileVerified, RecordID: recordID})

	select {
	case event := <-inbox:
		assert.Equal(t, KindFileVerified, event.Kind)
		assert.Equal(t, recordID, event.RecordID)
		assert.False(t, event.Timestamp.IsZero(), "missing timestamp is filled in")
	default:
		t.Fatal("expected a queued event")
	}
}

func TestPublisher_PreservesExplicitTimestamp(t *testing.T) {
	publisher, inbox := NewPublisher(1, discardLogger())
	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)

	publisher.Emit(context.Background(), Event{Kind: KindEmailStatusChanged, Timestamp: at})
	assert.Equal(t, at, (<-inbox).Timestamp)
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	publisher, inbox := NewPublisher(1, discardLogger())

	publisher.Emit(context.Background(), Event{Kind: KindFileVerified})
	publisher.Emit(context.Background(), Event{Kind: KindEmailStatusChanged})

	assert.Equal(t, KindFileVerified, (<-inbox).Kind)
	select {
	case extra := <-inbox:
		t.Fatalf("second event should have been dropped, got %s", extra.Kind)
	default:
	}
}

func TestPublisher_NilReceiverIsSafe(t *testing.T) {
	var publisher *Publisher
	assert.NotPanics(t, func() {
		publisher.Emit(context.Background(), Event{Kind: KindFileVerified})
	})
}

type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) Publish(context.Context, Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return errors.New("broker down")
}

func (s *failingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestWorker_PersistsAndMirrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewInMemoryStore()
	sink := &failingSink{}
	publisher, inbox := NewPublisher(8, discardLogger())
	worker := NewWorker(store, sink, inbox, discardLogger())

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	recordID := id.RecordID(uuid.New())
	publisher.Emit(ctx, Event{Kind: KindEmailVerificationRequested, RecordID: recordID})
	publisher.Emit(ctx, Event{Kind: KindEmailStatusChanged, RecordID: recordID})

	require.Eventually(t, func() bool {
		events, err := store.ListByRecord(context.Background(), recordID)
		return err == nil && len(events) == 2
	}, time.Second, 5*time.Millisecond)

	// A failing sink never blocks persistence.
	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestWorker_NilSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewInMemoryStore()
	publisher, inbox := NewPublisher(1, discardLogger())
	worker := NewWorker(store, nil, inbox, discardLogger())
	go func() { _ = worker.Run(ctx) }()

	recordID := id.RecordID(uuid.New())
	publisher.Emit(ctx, Event{Kind: KindFileVerified, RecordID: recordID})

	require.Eventually(t, func() bool {
		events, _ := store.ListByRecord(context.Background(), recordID)
		return len(events) == 1
	}, time.Second, 5*time.Millisecond)
}
