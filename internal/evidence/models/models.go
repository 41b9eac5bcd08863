// Package models defines the evidence aggregate: one Record per (rule, user)
// pair holding the self-assessment answer and contact evidence, plus the
// label-keyed files attached to it.
package models

import (
	"time"

	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
)

// Record is a user's answer to a control rule together with its evidentiary
// contact fields and the deliverability state of the contact email.
//
// Invariants:
//   - (RuleID, UserID) is unique; records are created lazily on first
//     submission and only removed by cascading deletion of rule or user.
//   - BaselineRequests/BaselineDelivered are nil until a verification cycle
//     captures them; nil means "no baseline", which the poller must
//     distinguish from a legitimate zero. They are only overwritten when a
//     new verification cycle starts.
type Record struct {
	ID       id.RecordID `json:"id"`
	RuleID   id.RuleID   `json:"rule"`
	UserID   id.UserID   `json:"user"`
	Status   id.AnswerStatus `json:"status"`
	Notes    string          `json:"notes"`
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`

	EmailStatus       id.EmailStatus `json:"email_status"`
	BaselineRequests  *int64         `json:"email_verification_baseline_requests"`
	BaselineDelivered *int64         `json:"email_verification_baseline_delivered"`

	UpdatedAt time.Time `json:"last_updated"`
}

// NewRecord builds an empty record for a (rule, user) pair.
func NewRecord(recordID id.RecordID, ruleID id.RuleID, userID id.UserID, now time.Time) (*Record, error) {
	if ruleID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record requires a rule")
	}
	if userID.IsZero() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "record requires a user")
	}
	return &Record{
		ID:        recordID,
		RuleID:    ruleID,
		UserID:    userID,
		Status:    id.AnswerNotEvaluated,
		UpdatedAt: now,
	}, nil
}

// File is a document attached to a record under a file-type label. At most
// one file exists per (record, label); replacing deletes the prior upload.
type File struct {
	ID       id.FileID   `json:"id"`
	RecordID id.RecordID `json:"-"`
	Label    string      `json:"file_type"`
	Filename string      `json:"file"`
	Content  []byte      `json:"-"`

	UploadedAt time.Time `json:"uploaded_at"`

	VerificationStatus  id.FileStatus `json:"file_verification_status"`
	VerificationMessage string        `json:"file_verification_message"`
}

// FileChange is an upload or a deletion marker for one label, resolved from
// the transport layer before any persistence happens.
type FileChange struct {
	Label    string
	Filename string
	Content  []byte
	Delete   bool
}
