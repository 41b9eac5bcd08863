// Package audit records verification outcomes as an append-only trail.
// Auditing is best-effort: a full buffer or a down sink never fails the
// user's request.
package audit

import (
	"time"

	id "corecompliance/pkg/domain"
)

// Kind identifies what happened.
type Kind string

const (
	KindEmailVerificationRequested Kind = "email_verification_requested"
	KindEmailStatusChanged         Kind = "email_status_changed"
	KindFileVerified               Kind = "file_verified"
)

// Event is one audit entry. Detail is free text sized for an operator, not
// a machine.
type Event struct {
	Kind      Kind        `json:"kind"`
	RecordID  id.RecordID `json:"record_id"`
	UserID    id.UserID   `json:"user_id"`
	Detail    string      `json:"detail"`
	Timestamp time.Time   `json:"timestamp"`
}
