package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher hands events to the worker through a bounded buffer. Emit never
// blocks the request path: when the buffer is full the event is dropped and
// counted in the log instead.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

// NewPublisher returns a publisher and the channel the worker drains.
func NewPublisher(buffer int, logger *slog.Logger) (*Publisher, <-chan Event) {
	inbox := make(chan Event, buffer)
	return &Publisher{inbox: inbox, logger: logger}, inbox
}

// Emit queues an event. Best-effort by contract.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event",
			"kind", string(event.Kind),
			"record_id", event.RecordID.String(),
		)
	}
}
