// Package handler exposes the verification endpoints: email deliverability
// request and polling, file freshness checks, and the provider webhook.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"corecompliance/internal/platform/middleware"
	"corecompliance/internal/verification/deliverability"
	"corecompliance/internal/verification/freshness"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
	"corecompliance/pkg/platform/httputil"
	"corecompliance/pkg/requestcontext"
)

// EmailService defines the deliverability operations this handler exposes.
type EmailService interface {
	RequestVerification(ctx context.Context, userID id.UserID, recordID id.RecordID) (*deliverability.RequestResult, error)
	CheckStatus(ctx context.Context, userID id.UserID, recordID id.RecordID) (*deliverability.StatusReport, error)
	ProcessEvents(ctx context.Context, events []deliverability.WebhookEvent) (*deliverability.WebhookSummary, error)
}

// FileService defines the freshness operation this handler exposes.
type FileService interface {
	VerifyFile(ctx context.Context, userID id.UserID, recordID id.RecordID, label string) (*freshness.Result, error)
}

// Handler handles verification-related endpoints.
type Handler struct {
	email        EmailService
	files        FileService
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(email EmailService, files FileService, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		email:        email,
		files:        files,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register registers the verification routes with the chi router. The webhook
// stays outside the authenticated sub-router: the provider cannot carry a
// user token, it is trusted at the channel level.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		authed.Post("/verification/email", h.handleRequestEmailVerification)
		authed.Post("/verification/email/status", h.handleCheckEmailStatus)
		authed.Post("/verification/file", h.handleVerifyFile)
	})
	r.Post("/webhook/sendgrid", h.handleWebhook)
}

// maxWebhookBytes bounds one provider event batch.
const maxWebhookBytes = 1 << 20

type recordRequest struct {
	AnswerID string `json:"answer_id"`
}

type fileRequest struct {
	AnswerID string `json:"answer_id"`
	FileType string `json:"file_type"`
}

func (h *Handler) handleRequestEmailVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := decodeRecordID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.email.RequestVerification(ctx, requestcontext.UserID(ctx), recordID)
	if err != nil {
		h.logVerificationFailure(ctx, "email verification request failed", err)
		// A failed send still reports the pending state it left behind.
		if result != nil {
			httputil.WriteJSON(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), result)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCheckEmailStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recordID, err := decodeRecordID(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.email.CheckStatus(ctx, requestcontext.UserID(ctx), recordID)
	if err != nil {
		h.logVerificationFailure(ctx, "email status check failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleVerifyFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req fileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recordID, err := id.ParseRecordID(req.AnswerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.FileType == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file_type is required"))
		return
	}

	result, err := h.files.VerifyFile(ctx, requestcontext.UserID(ctx), recordID, req.FileType)
	if err != nil {
		h.logVerificationFailure(ctx, "file verification failed", err)
		// Extraction failures carry the persisted error status and message.
		if result != nil {
			httputil.WriteJSON(w, dErrors.ToHTTPStatus(dErrors.CodeOf(err)), result)
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// handleWebhook accepts the provider's event batch. The provider posts a JSON
// array; a single bare object is tolerated. Malformed JSON is the only
// request-level error; everything else is reconciled best-effort.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := decodeWebhookBody(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	summary, err := h.email.ProcessEvents(ctx, events)
	if err != nil {
		h.logger.ErrorContext(ctx, "webhook processing failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, summary)
}

func decodeWebhookBody(r *http.Request) ([]deliverability.WebhookEvent, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unreadable webhook payload")
	}

	var events []deliverability.WebhookEvent
	if err := json.Unmarshal(body, &events); err == nil {
		return events, nil
	}

	var single deliverability.WebhookEvent
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "malformed webhook payload")
	}
	return []deliverability.WebhookEvent{single}, nil
}

func decodeRecordID(r *http.Request) (id.RecordID, error) {
	var req recordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return id.RecordID{}, dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return id.ParseRecordID(req.AnswerID)
}

func (h *Handler) logVerificationFailure(ctx context.Context, msg string, err error) {
	if dErrors.Is(err, dErrors.CodeInternal) || dErrors.Is(err, dErrors.CodeProviderUnavailable) {
		h.logger.ErrorContext(ctx, msg,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return
	}
	h.logger.WarnContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
}
