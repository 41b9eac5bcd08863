package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "corecompliance/pkg/domain"
)

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (kind, record_id, user_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, string(event.Kind), uuid.UUID(event.RecordID), uuid.UUID(event.UserID), event.Detail, event.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByRecord(ctx context.Context, recordID id.RecordID) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, record_id, user_id, detail, created_at
		FROM audit_events
		WHERE record_id = $1
		ORDER BY created_at
	`, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			event      Event
			kind       string
			recordUUID uuid.UUID
			userUUID   uuid.UUID
		)
		if err := rows.Scan(&kind, &recordUUID, &userUUID, &event.Detail, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		event.Kind = Kind(kind)
		event.RecordID = id.RecordID(recordUUID)
		event.UserID = id.UserID(userUUID)
		out = append(out, event)
	}
	return out, rows.Err()
}
