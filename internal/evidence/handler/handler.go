// Package handler exposes the self-assessment endpoints: the evaluation
// view, answer submission, and the dashboard aggregate.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"corecompliance/internal/evidence/service"
	"corecompliance/internal/platform/middleware"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
	"corecompliance/pkg/platform/httputil"
	"corecompliance/pkg/requestcontext"
)

// Service defines the self-assessment operations this handler exposes.
type Service interface {
	Evaluation(ctx context.Context, userID id.UserID) ([]*service.DomainEvaluation, error)
	SubmitAnswer(ctx context.Context, userID id.UserID, input service.AnswerInput) (*service.Answer, error)
	UpdateAnswer(ctx context.Context, userID id.UserID, recordID id.RecordID, input service.AnswerInput) (*service.Answer, error)
	Dashboard(ctx context.Context, userID id.UserID) (*service.DashboardStats, error)
}

// Handler handles evaluation and answer endpoints.
type Handler struct {
	evidence     Service
	logger       *slog.Logger
	jwtValidator middleware.JWTValidator
}

func New(evidence Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		evidence:     evidence,
		logger:       logger,
		jwtValidator: jwtValidator,
	}
}

// Register registers the evaluation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(authed chi.Router) {
		authed.Use(middleware.RequireAuth(h.jwtValidator, h.logger))
		authed.Get("/evaluation", h.handleEvaluation)
		authed.Post("/answers", h.handleSubmitAnswer)
		authed.Put("/answers/{id}", h.handleUpdateAnswer)
		authed.Get("/dashboard-stats", h.handleDashboard)
	})
}

func (h *Handler) handleEvaluation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	evaluations, err := h.evidence.Evaluation(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build evaluation",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromEvaluation(evaluations))
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	input, err := decodeAnswerForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if input.RuleID.IsZero() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "rule_id is required"))
		return
	}

	answer, err := h.evidence.SubmitAnswer(ctx, userID, input)
	if err != nil {
		h.logAnswerFailure(ctx, "submit answer failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, fromAnswer(answer.Record, answer.Files))
}

func (h *Handler) handleUpdateAnswer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	recordID, err := id.ParseRecordID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := decodeAnswerForm(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	answer, err := h.evidence.UpdateAnswer(ctx, userID, recordID, input)
	if err != nil {
		h.logAnswerFailure(ctx, "update answer failed", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromAnswer(answer.Record, answer.Files))
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)

	stats, err := h.evidence.Dashboard(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to compute dashboard stats",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) logAnswerFailure(ctx context.Context, msg string, err error) {
	if dErrors.Is(err, dErrors.CodeInternal) {
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
