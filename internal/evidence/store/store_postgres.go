package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
	"corecompliance/pkg/platform/sentinel"
)

// Postgres persists evidence records and files in PostgreSQL. File payloads
// live in a bytea column; no history is kept for replaced uploads.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const recordColumns = `
	id, rule_id, user_id, status, notes, contact_name, email, phone,
	email_status, baseline_requests, baseline_delivered, updated_at
`

func (s *Postgres) GetOrCreate(ctx context.Context, ruleID id.RuleID, userID id.UserID, now time.Time) (*models.Record, bool, error) {
	record, err := models.NewRecord(id.RecordID(uuid.New()), ruleID, userID, now)
	if err != nil {
		return nil, false, err
	}
	// ON CONFLICT DO NOTHING + re-select keeps the (rule, user) uniqueness
	// race-free without an advisory lock.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO evidence_records (id, rule_id, user_id, status, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (rule_id, user_id) DO NOTHING
	`, uuid.UUID(record.ID), uuid.UUID(ruleID), uuid.UUID(userID), string(record.Status), now)
	if err != nil {
		return nil, false, fmt.Errorf("create record: %w", err)
	}
	inserted, _ := res.RowsAffected()

	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM evidence_records
		WHERE rule_id = $1 AND user_id = $2
	`, uuid.UUID(ruleID), uuid.UUID(userID))
	found, err := scanRecord(row)
	if err != nil {
		return nil, false, err
	}
	return found, inserted > 0, nil
}

func (s *Postgres) FindByID(ctx context.Context, recordID id.RecordID, userID id.UserID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM evidence_records
		WHERE id = $1 AND user_id = $2
	`, uuid.UUID(recordID), uuid.UUID(userID))
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (s *Postgres) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Record, error) {
	return s.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM evidence_records
		WHERE user_id = $1
		ORDER BY id
	`, uuid.UUID(userID))
}

func (s *Postgres) ListByEmail(ctx context.Context, email string) ([]*models.Record, error) {
	return s.listRecords(ctx, `
		SELECT `+recordColumns+`
		FROM evidence_records
		WHERE lower(email) = lower($1)
	`, email)
}

func (s *Postgres) listRecords(ctx context.Context, query string, arg any) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var out []*models.Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s *Postgres) Update(ctx context.Context, record *models.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_records
		SET status = $2, notes = $3, contact_name = $4, email = $5, phone = $6, updated_at = $7
		WHERE id = $1
	`, uuid.UUID(record.ID), string(record.Status), record.Notes, record.Name, record.Email, record.Phone, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) SetEmailVerification(ctx context.Context, recordID id.RecordID, status id.EmailStatus, baselineRequests, baselineDelivered *int64, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_records
		SET email_status = $2, baseline_requests = $3, baseline_delivered = $4, updated_at = $5
		WHERE id = $1
	`, uuid.UUID(recordID), string(status), nullInt64(baselineRequests), nullInt64(baselineDelivered), now)
	if err != nil {
		return fmt.Errorf("set email verification: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) SetEmailStatus(ctx context.Context, recordID id.RecordID, status id.EmailStatus, now time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_records
		SET email_status = $2, updated_at = $3
		WHERE id = $1
	`, uuid.UUID(recordID), string(status), now)
	if err != nil {
		return fmt.Errorf("set email status: %w", err)
	}
	return requireRow(res)
}

func (s *Postgres) CountByUserAndStatus(ctx context.Context, userID id.UserID, status id.AnswerStatus) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM evidence_records WHERE user_id = $1 AND status = $2
	`, uuid.UUID(userID), string(status)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

func (s *Postgres) UpsertFile(ctx context.Context, file *models.File) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert file: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Replace semantics: the prior upload for this label is removed, never
	// retained alongside the new one.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM evidence_files WHERE record_id = $1 AND label = $2
	`, uuid.UUID(file.RecordID), file.Label); err != nil {
		return fmt.Errorf("delete prior file: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evidence_files (id, record_id, label, filename, content, uploaded_at, verification_status, verification_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(file.ID), uuid.UUID(file.RecordID), file.Label, file.Filename, file.Content,
		file.UploadedAt, string(file.VerificationStatus), file.VerificationMessage)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return tx.Commit()
}

func (s *Postgres) DeleteFile(ctx context.Context, recordID id.RecordID, label string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM evidence_files WHERE record_id = $1 AND label = $2
	`, uuid.UUID(recordID), label)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

func (s *Postgres) FindFile(ctx context.Context, recordID id.RecordID, label string) (*models.File, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, label, filename, content, uploaded_at, verification_status, verification_message
		FROM evidence_files
		WHERE record_id = $1 AND label = $2
	`, uuid.UUID(recordID), label)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

func (s *Postgres) ListFiles(ctx context.Context, recordID id.RecordID) ([]*models.File, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, label, filename, content, uploaded_at, verification_status, verification_message
		FROM evidence_files
		WHERE record_id = $1
		ORDER BY label
	`, uuid.UUID(recordID))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, file)
	}
	return out, rows.Err()
}

func (s *Postgres) SetFileVerification(ctx context.Context, fileID id.FileID, status id.FileStatus, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE evidence_files
		SET verification_status = $2, verification_message = $3
		WHERE id = $1
	`, uuid.UUID(fileID), string(status), message)
	if err != nil {
		return fmt.Errorf("set file verification: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		record            models.Record
		recordUUID        uuid.UUID
		ruleUUID          uuid.UUID
		userUUID          uuid.UUID
		status            string
		emailStatus       sql.NullString
		baselineRequests  sql.NullInt64
		baselineDelivered sql.NullInt64
	)
	err := row.Scan(&recordUUID, &ruleUUID, &userUUID, &status, &record.Notes,
		&record.Name, &record.Email, &record.Phone, &emailStatus,
		&baselineRequests, &baselineDelivered, &record.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	record.ID = id.RecordID(recordUUID)
	record.RuleID = id.RuleID(ruleUUID)
	record.UserID = id.UserID(userUUID)
	record.Status = id.AnswerStatus(status)
	if emailStatus.Valid {
		record.EmailStatus = id.EmailStatus(emailStatus.String)
	}
	if baselineRequests.Valid {
		record.BaselineRequests = &baselineRequests.Int64
	}
	if baselineDelivered.Valid {
		record.BaselineDelivered = &baselineDelivered.Int64
	}
	return &record, nil
}

func scanFile(row rowScanner) (*models.File, error) {
	var (
		file       models.File
		fileUUID   uuid.UUID
		recordUUID uuid.UUID
		status     string
	)
	err := row.Scan(&fileUUID, &recordUUID, &file.Label, &file.Filename,
		&file.Content, &file.UploadedAt, &status, &file.VerificationMessage)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan file: %w", err)
	}
	file.ID = id.FileID(fileUUID)
	file.RecordID = id.RecordID(recordUUID)
	file.VerificationStatus = id.FileStatus(status)
	return &file, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Class() == "23"
}
