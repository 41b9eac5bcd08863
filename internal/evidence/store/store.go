// Package store persists evidence records and their attached files.
package store

import (
	"context"
	"time"

	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
)

// Store is the persistence surface for evidence records and files. Stores
// return sentinel errors; services translate them into domain errors.
//
// No locking is promised around the baseline read-modify-write: concurrent
// verification requests for the same record race and the last write wins,
// which is acceptable for this advisory feature.
type Store interface {
	// GetOrCreate returns the record for (rule, user), creating an empty
	// one when none exists yet. The bool reports creation.
	GetOrCreate(ctx context.Context, ruleID id.RuleID, userID id.UserID, now time.Time) (*models.Record, bool, error)

	// FindByID returns a record only when it belongs to userID, so handlers
	// cannot reach across users.
	FindByID(ctx context.Context, recordID id.RecordID, userID id.UserID) (*models.Record, error)

	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Record, error)

	// ListByEmail returns every record sharing a contact email, across
	// users. Email is not a unique key; the webhook updates all of them.
	ListByEmail(ctx context.Context, email string) ([]*models.Record, error)

	// Update persists answer fields (status, notes, contact) and bumps
	// UpdatedAt.
	Update(ctx context.Context, record *models.Record) error

	// SetEmailVerification persists the deliverability status together with
	// the baseline counters in one write, so a crash between the two can
	// never leave a pending status with stale counters.
	SetEmailVerification(ctx context.Context, recordID id.RecordID, status id.EmailStatus, baselineRequests, baselineDelivered *int64, now time.Time) error

	// SetEmailStatus updates only the deliverability status.
	SetEmailStatus(ctx context.Context, recordID id.RecordID, status id.EmailStatus, now time.Time) error

	CountByUserAndStatus(ctx context.Context, userID id.UserID, status id.AnswerStatus) (int, error)

	// UpsertFile stores a file under (record, label), deleting any prior
	// file with the same label. No history is retained.
	UpsertFile(ctx context.Context, file *models.File) error

	DeleteFile(ctx context.Context, recordID id.RecordID, label string) error

	FindFile(ctx context.Context, recordID id.RecordID, label string) (*models.File, error)

	ListFiles(ctx context.Context, recordID id.RecordID) ([]*models.File, error)

	// SetFileVerification persists the freshness tier and message for a file.
	SetFileVerification(ctx context.Context, fileID id.FileID, status id.FileStatus, message string) error
}
