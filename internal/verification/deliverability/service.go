// Package deliverability verifies a contact email by sending a probe message
// and watching the provider's aggregate counters move around it.
//
// The provider exposes no per-message status lookup, so verification diffs
// account-wide daily counters captured before the send against counters read
// later. The counters cover all mail the account sends that day; concurrent
// sends to other recipients in the same window corrupt the diff. The provider
// webhook, when reachable, is the authoritative channel and supersedes any
// conclusion the poller draws.
package deliverability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"corecompliance/internal/audit"
	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
	"corecompliance/pkg/platform/sentinel"
	"corecompliance/pkg/requestcontext"
)

const (
	// minPollDelay is how long the poller refuses to draw conclusions after
	// the baseline write, giving the provider time to register the send.
	minPollDelay = 30 * time.Second

	// stalledAfter is when an unmoved requests counter stops meaning
	// "still queued" and starts meaning something is probably wrong.
	stalledAfter = 2 * time.Minute

	// optimisticValidAfter bounds how long a stats outage can hold a record
	// in pending. Past it the poller assumes delivery; the webhook corrects
	// the record if that assumption was wrong.
	optimisticValidAfter = 3 * time.Minute
)

// RecordStore is the slice of the evidence store this service needs.
type RecordStore interface {
	FindByID(ctx context.Context, recordID id.RecordID, userID id.UserID) (*models.Record, error)
	ListByEmail(ctx context.Context, email string) ([]*models.Record, error)
	SetEmailVerification(ctx context.Context, recordID id.RecordID, status id.EmailStatus, baselineRequests, baselineDelivered *int64, now time.Time) error
	SetEmailStatus(ctx context.Context, recordID id.RecordID, status id.EmailStatus, now time.Time) error
}

// RequestResult reports the outcome of a verification request.
type RequestResult struct {
	Status            id.EmailStatus `json:"status"`
	BaselineCaptured  bool           `json:"baseline_captured"`
	BaselineRequests  *int64         `json:"baseline_requests"`
	BaselineDelivered *int64         `json:"baseline_delivered"`
	Message           string         `json:"message"`
}

// Snapshot is a counter pair included in poller reports for observability.
type Snapshot struct {
	Requests  int64 `json:"requests"`
	Delivered int64 `json:"delivered"`
}

// StatusReport is the poller's answer: the record's current status, a
// human-readable message, and the counter snapshots when available.
type StatusReport struct {
	Status         id.EmailStatus `json:"status"`
	Message        string         `json:"message"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	Baseline       *Snapshot      `json:"baseline,omitempty"`
	Current        *Snapshot      `json:"current,omitempty"`
}

// WebhookEvent is one delivery event pushed by the provider.
type WebhookEvent struct {
	Event string `json:"event"`
	Email string `json:"email"`
}

// WebhookSummary counts the outcome of one webhook batch.
type WebhookSummary struct {
	EventsSeen     int `json:"events_seen"`
	RecordsUpdated int `json:"records_updated"`
}

// Service owns the deliverability state machine: baseline capture on request,
// counter diffing on poll, and webhook reconciliation.
type Service struct {
	records   RecordStore
	stats     StatsProvider
	sender    Sender
	fromEmail string
	auditor   *audit.Publisher
	metrics   *Metrics
	logger    *slog.Logger
}

func NewService(records RecordStore, stats StatsProvider, sender Sender, fromEmail string, auditor *audit.Publisher, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{
		records:   records,
		stats:     stats,
		sender:    sender,
		fromEmail: fromEmail,
		auditor:   auditor,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *Service) configured() bool {
	return s.stats != nil && s.sender != nil && s.fromEmail != ""
}

// RequestVerification captures a counter baseline, marks the record pending,
// and dispatches the probe message.
//
// Baseline capture failure is not fatal: the counters stay nil so the poller
// can tell "no baseline" from "baseline is zero." Send failure is surfaced to
// the caller but the pending status already written stays in place; the
// poller or webhook resolves it.
//
// Errors: CodeNotFound when the record is missing; CodeBadRequest when it has
// no contact email; CodeProviderUnavailable when the provider is not
// configured or the send fails.
func (s *Service) RequestVerification(ctx context.Context, userID id.UserID, recordID id.RecordID) (*RequestResult, error) {
	record, err := s.records.FindByID(ctx, recordID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if record.Email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record has no contact email")
	}
	if !s.configured() {
		return nil, dErrors.New(dErrors.CodeProviderUnavailable, "mail provider is not configured")
	}

	now := requestcontext.Now(ctx)

	var baselineRequests, baselineDelivered *int64
	stats, err := s.stats.DayStats(ctx, now)
	if err != nil {
		s.metrics.IncrementProviderErrors()
		s.logger.WarnContext(ctx, "baseline capture failed, proceeding without counters",
			"error", err,
			"record_id", record.ID.String(),
		)
	} else {
		baselineRequests = &stats.Requests
		baselineDelivered = &stats.Delivered
	}

	if err := s.records.SetEmailVerification(ctx, record.ID, id.EmailStatusPending, baselineRequests, baselineDelivered, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist verification baseline")
	}
	s.metrics.IncrementRequests()
	s.auditor.Emit(ctx, audit.Event{
		Kind:     audit.KindEmailVerificationRequested,
		RecordID: record.ID,
		UserID:   record.UserID,
		Detail:   fmt.Sprintf("verification requested for %s", record.Email),
	})

	result := &RequestResult{
		Status:            id.EmailStatusPending,
		BaselineCaptured:  baselineRequests != nil,
		BaselineRequests:  baselineRequests,
		BaselineDelivered: baselineDelivered,
		Message:           "Correo de verificación enviado, consulte el estado en unos segundos",
	}

	if err := s.sender.Send(ctx, Message{
		From:    s.fromEmail,
		To:      record.Email,
		Subject: "Verificación de correo electrónico",
		HTML:    verificationBody(record.Name),
	}); err != nil {
		s.metrics.IncrementProviderErrors()
		s.logger.ErrorContext(ctx, "verification send failed",
			"error", err,
			"record_id", record.ID.String(),
		)
		result.Message = "No se pudo enviar el correo de verificación"
		return result, dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "failed to send verification email")
	}

	s.logger.InfoContext(ctx, "verification email dispatched",
		"record_id", record.ID.String(),
		"baseline_captured", result.BaselineCaptured,
	)
	return result, nil
}

func verificationBody(name string) string {
	greeting := "Estimado/a"
	if name != "" {
		greeting = "Estimado/a " + name
	}
	return fmt.Sprintf("<p>%s:</p><p>Este es un correo de verificación. No es necesario responder; su recepción confirma que la dirección registrada es válida.</p>", greeting)
}

// CheckStatus re-reads the provider counters and diffs them against the
// stored baseline to decide whether the probe message was delivered.
//
// Errors: CodeNotFound when the record is missing; CodeBadRequest when no
// verification was requested; CodeProviderUnavailable when the provider is
// not configured.
func (s *Service) CheckStatus(ctx context.Context, userID id.UserID, recordID id.RecordID) (*StatusReport, error) {
	record, err := s.records.FindByID(ctx, recordID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if record.Email == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "record has no contact email")
	}
	if record.EmailStatus == id.EmailStatusUnset {
		return nil, dErrors.New(dErrors.CodeBadRequest, "email verification has not been requested")
	}
	if record.EmailStatus != id.EmailStatusPending {
		s.metrics.IncrementStatusCheck("resolved")
		return &StatusReport{
			Status:  record.EmailStatus,
			Message: statusMessage(record.EmailStatus),
		}, nil
	}
	if !s.configured() {
		return nil, dErrors.New(dErrors.CodeProviderUnavailable, "mail provider is not configured")
	}

	now := requestcontext.Now(ctx)
	elapsed := now.Sub(record.UpdatedAt)
	report := &StatusReport{
		Status:         id.EmailStatusPending,
		ElapsedSeconds: elapsed.Seconds(),
	}

	if elapsed < minPollDelay {
		report.Message = "Esperando confirmación del proveedor, intente nuevamente en unos segundos"
		s.metrics.IncrementStatusCheck("waiting")
		return report, nil
	}

	// A missing baseline means capture failed at request time. Zero is the
	// documented fallback: any counter movement then reads as activity.
	var baseline Snapshot
	if record.BaselineRequests != nil {
		baseline.Requests = *record.BaselineRequests
	}
	if record.BaselineDelivered != nil {
		baseline.Delivered = *record.BaselineDelivered
	}
	report.Baseline = &baseline

	current, err := s.stats.DayStats(ctx, now)
	if err != nil {
		s.metrics.IncrementProviderErrors()
		if elapsed > optimisticValidAfter {
			return s.transition(ctx, record, report, id.EmailStatusValid,
				"Correo marcado como válido (sin confirmación directa del proveedor)", "optimistic_valid", now)
		}
		report.Message = "No se pudo consultar las estadísticas del proveedor, reintentando"
		s.metrics.IncrementStatusCheck("retrying")
		return report, nil
	}
	report.Current = &Snapshot{Requests: current.Requests, Delivered: current.Delivered}

	deltaRequests := current.Requests - baseline.Requests
	deltaDelivered := current.Delivered - baseline.Delivered

	switch {
	case deltaRequests <= 0:
		if elapsed > stalledAfter {
			report.Message = "El procesamiento parece detenido, considere reenviar la verificación"
			s.metrics.IncrementStatusCheck("stalled")
		} else {
			report.Message = "El proveedor aún no procesa el mensaje, intente nuevamente en unos segundos"
			s.metrics.IncrementStatusCheck("waiting")
		}
		return report, nil
	case deltaDelivered > 0:
		return s.transition(ctx, record, report, id.EmailStatusValid, statusMessage(id.EmailStatusValid), "valid", now)
	default:
		return s.transition(ctx, record, report, id.EmailStatusBounced, statusMessage(id.EmailStatusBounced), "bounced", now)
	}
}

func (s *Service) transition(ctx context.Context, record *models.Record, report *StatusReport, status id.EmailStatus, message, outcome string, now time.Time) (*StatusReport, error) {
	if err := s.records.SetEmailStatus(ctx, record.ID, status, now); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist email status")
	}
	s.metrics.IncrementStatusCheck(outcome)
	s.auditor.Emit(ctx, audit.Event{
		Kind:     audit.KindEmailStatusChanged,
		RecordID: record.ID,
		UserID:   record.UserID,
		Detail:   fmt.Sprintf("email status set to %s by poller", status),
	})
	s.logger.InfoContext(ctx, "email status resolved",
		"record_id", record.ID.String(),
		"status", string(status),
		"outcome", outcome,
	)
	report.Status = status
	report.Message = message
	return report, nil
}

func statusMessage(status id.EmailStatus) string {
	switch status {
	case id.EmailStatusValid:
		return "Correo verificado: el mensaje fue entregado"
	case id.EmailStatusBounced:
		return "El correo rebotó: la dirección parece inválida"
	default:
		return "Verificación en curso"
	}
}

// ProcessEvents reconciles a batch of provider delivery events. Every record
// sharing an event's recipient address is updated; unmatched or unrecognized
// events are skipped without failing the batch.
func (s *Service) ProcessEvents(ctx context.Context, events []WebhookEvent) (*WebhookSummary, error) {
	summary := &WebhookSummary{EventsSeen: len(events)}
	now := requestcontext.Now(ctx)

	for _, event := range events {
		var target id.EmailStatus
		switch event.Event {
		case "delivered":
			target = id.EmailStatusValid
		case "bounce", "dropped":
			target = id.EmailStatusBounced
		default:
			s.metrics.IncrementWebhookEvent("ignored")
			continue
		}
		if event.Email == "" {
			s.metrics.IncrementWebhookEvent("skipped")
			continue
		}

		records, err := s.records.ListByEmail(ctx, event.Email)
		if err != nil {
			s.metrics.IncrementWebhookEvent("error")
			s.logger.ErrorContext(ctx, "webhook record lookup failed",
				"error", err,
				"event", event.Event,
			)
			continue
		}
		if len(records) == 0 {
			s.metrics.IncrementWebhookEvent("unmatched")
			continue
		}

		for _, record := range records {
			if err := s.records.SetEmailStatus(ctx, record.ID, target, now); err != nil {
				s.metrics.IncrementWebhookEvent("error")
				s.logger.ErrorContext(ctx, "webhook status update failed",
					"error", err,
					"record_id", record.ID.String(),
				)
				continue
			}
			summary.RecordsUpdated++
			s.metrics.IncrementWebhookEvent("updated")
			s.auditor.Emit(ctx, audit.Event{
				Kind:     audit.KindEmailStatusChanged,
				RecordID: record.ID,
				UserID:   record.UserID,
				Detail:   fmt.Sprintf("email status set to %s by webhook event %q", target, event.Event),
			})
		}
	}

	s.logger.InfoContext(ctx, "webhook batch processed",
		"events_seen", summary.EventsSeen,
		"records_updated", summary.RecordsUpdated,
	)
	return summary, nil
}
