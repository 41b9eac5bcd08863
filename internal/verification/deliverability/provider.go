package deliverability

import (
	"context"
	"time"
)

// Stats is a day's aggregate counters from the mail provider. Counters are
// account-wide, not per-message; verification works by diffing them around a
// probe send.
type Stats struct {
	Requests  int64
	Delivered int64
}

// Message is one outbound verification email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// StatsProvider reads the provider's aggregate stats for a single day.
type StatsProvider interface {
	DayStats(ctx context.Context, day time.Time) (Stats, error)
}

// Sender delivers a message through the provider.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
