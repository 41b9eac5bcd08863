package freshness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"corecompliance/internal/audit"
	catalogmodels "corecompliance/internal/catalog/models"
	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
	"corecompliance/pkg/platform/sentinel"
	"corecompliance/pkg/requestcontext"
)

// RecordStore is the slice of the evidence store this service needs.
type RecordStore interface {
	FindByID(ctx context.Context, recordID id.RecordID, userID id.UserID) (*models.Record, error)
	FindFile(ctx context.Context, recordID id.RecordID, label string) (*models.File, error)
	SetFileVerification(ctx context.Context, fileID id.FileID, status id.FileStatus, message string) error
}

// RuleStore resolves the catalog rule that declares freshness requirements.
type RuleStore interface {
	FindRule(ctx context.Context, ruleID id.RuleID) (*catalogmodels.Rule, error)
}

// Result is the outcome of one freshness verification, returned to the
// caller and persisted on the file.
type Result struct {
	Status              id.FileStatus `json:"status"`
	MostRecentDate      string        `json:"most_recent_date,omitempty"`
	MonthsDifference    float64       `json:"months_difference,omitempty"`
	VerificationMessage string        `json:"verification_message"`
}

// Service runs the extract-then-classify pipeline for one attached file and
// persists its outcome. Re-running with the same file and threshold always
// produces the same status and message.
type Service struct {
	records RecordStore
	rules   RuleStore
	auditor *audit.Publisher
	metrics *Metrics
	logger  *slog.Logger
}

func NewService(records RecordStore, rules RuleStore, auditor *audit.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{
		records: records,
		rules:   rules,
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// VerifyFile checks the file attached under label on the caller's record.
//
// Errors: CodeNotFound when record, rule, or file is missing;
// CodeInvalidInput when the rule declares no threshold for the label or the
// document fails extraction; CodeInternal for unexpected parse failures.
// Extraction failures are additionally persisted on the file as an error
// status with a human-readable message.
func (s *Service) VerifyFile(ctx context.Context, userID id.UserID, recordID id.RecordID, label string) (*Result, error) {
	record, err := s.records.FindByID(ctx, recordID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}

	rule, err := s.rules.FindRule(ctx, record.RuleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule")
	}

	threshold, required := rule.FreshnessThreshold(label)
	if !required {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "this file type does not require verification")
	}

	file, err := s.records.FindFile(ctx, recordID, label)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "file not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load file")
	}

	start := time.Now()
	extraction, err := Extract(file.Content, filepath.Ext(file.Filename))
	s.metrics.ObserveParseDuration(time.Since(start).Seconds())
	if err != nil {
		return s.recordFailure(ctx, record, file, err)
	}

	classification := Classify(extraction.MostRecent, threshold, requestcontext.Now(ctx))
	if err := s.records.SetFileVerification(ctx, file.ID, classification.Status, classification.Message); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification result")
	}

	s.metrics.IncrementVerification(string(classification.Status))
	s.auditor.Emit(ctx, audit.Event{
		Kind:     audit.KindFileVerified,
		RecordID: record.ID,
		UserID:   record.UserID,
		Detail:   fmt.Sprintf("file %q classified %s", label, classification.Status),
	})
	s.logger.InfoContext(ctx, "file verified",
		"record_id", record.ID.String(),
		"label", label,
		"status", string(classification.Status),
		"rows", extraction.RowCount,
	)

	return &Result{
		Status:              classification.Status,
		MostRecentDate:      extraction.MostRecent.Format("2006-01-02"),
		MonthsDifference:    classification.AgeMonths,
		VerificationMessage: classification.Message,
	}, nil
}

// recordFailure persists an error tier on the file and translates the
// extraction failure into a domain error, so the caller gets a 4xx/5xx with
// the message embedded while the file keeps the status for later inspection.
func (s *Service) recordFailure(ctx context.Context, record *models.Record, file *models.File, extractErr error) (*Result, error) {
	message, code := describeExtractionError(extractErr)

	if err := s.records.SetFileVerification(ctx, file.ID, id.FileStatusError, message); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist verification error",
			"error", err,
			"record_id", record.ID.String(),
		)
	}
	s.metrics.IncrementVerification(string(id.FileStatusError))
	s.auditor.Emit(ctx, audit.Event{
		Kind:     audit.KindFileVerified,
		RecordID: record.ID,
		UserID:   record.UserID,
		Detail:   fmt.Sprintf("file %q verification failed: %s", file.Label, message),
	})

	return &Result{
		Status:              id.FileStatusError,
		VerificationMessage: message,
	}, dErrors.New(code, message)
}

func describeExtractionError(err error) (string, dErrors.Code) {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "Formato de archivo no soportado. Use Excel (.xlsx, .xls) o CSV (.csv)", dErrors.CodeInvalidInput
	case errors.Is(err, ErrMissingDateColumn):
		return "No se encontró columna 'fecha' en el archivo", dErrors.CodeInvalidInput
	case errors.Is(err, ErrNoValidDates):
		return "No se encontraron fechas válidas en el archivo", dErrors.CodeInvalidInput
	default:
		return fmt.Sprintf("Error al verificar: %v", err), dErrors.CodeInternal
	}
}
