package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"corecompliance/internal/platform/middleware"
	"corecompliance/internal/verification/deliverability"
	"corecompliance/internal/verification/freshness"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
)

type fakeEmailService struct {
	requestResult *deliverability.RequestResult
	requestErr    error
	report        *deliverability.StatusReport
	reportErr     error
	summary       *deliverability.WebhookSummary
	gotEvents     []deliverability.WebhookEvent
}

func (f *fakeEmailService) RequestVerification(context.Context, id.UserID, id.RecordID) (*deliverability.RequestResult, error) {
	return f.requestResult, f.requestErr
}

func (f *fakeEmailService) CheckStatus(context.Context, id.UserID, id.RecordID) (*deliverability.StatusReport, error) {
	return f.report, f.reportErr
}

func (f *fakeEmailService) ProcessEvents(_ context.Context, events []deliverability.WebhookEvent) (*deliverability.WebhookSummary, error) {
	f.gotEvents = events
	if f.summary != nil {
		return f.summary, nil
	}
	return &deliverability.WebhookSummary{EventsSeen: len(events)}, nil
}

type fakeFileService struct {
	result *freshness.Result
	err    error
}

func (f *fakeFileService) VerifyFile(context.Context, id.UserID, id.RecordID, string) (*freshness.Result, error) {
	return f.result, f.err
}

type staticValidator struct {
	userID string
}

func (v staticValidator) ValidateToken(string) (*middleware.Claims, error) {
	return &middleware.Claims{UserID: v.userID}, nil
}

type VerificationHandlerSuite struct {
	suite.Suite

	email  *fakeEmailService
	files  *fakeFileService
	router chi.Router
}

func TestVerificationHandlerSuite(t *testing.T) {
	suite.Run(t, new(VerificationHandlerSuite))
}

func (s *VerificationHandlerSuite) SetupTest() {
	s.email = &fakeEmailService{}
	s.files = &fakeFileService{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := New(s.email, s.files, logger, staticValidator{userID: uuid.NewString()})
	s.router = chi.NewRouter()
	handler.Register(s.router)
}

func (s *VerificationHandlerSuite) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer token")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *VerificationHandlerSuite) TestRequestEmailVerification() {
	s.email.requestResult = &deliverability.RequestResult{
		Status:           id.EmailStatusPending,
		BaselineCaptured: true,
	}
	body, _ := json.Marshal(map[string]string{"answer_id": uuid.NewString()})

	w := s.do(http.MethodPost, "/verification/email", body)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var resp deliverability.RequestResult
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), id.EmailStatusPending, resp.Status)
}

func (s *VerificationHandlerSuite) TestRequestEmailVerification_SendFailureStillReportsPending() {
	s.email.requestResult = &deliverability.RequestResult{Status: id.EmailStatusPending}
	s.email.requestErr = dErrors.New(dErrors.CodeProviderUnavailable, "send failed")
	body, _ := json.Marshal(map[string]string{"answer_id": uuid.NewString()})

	w := s.do(http.MethodPost, "/verification/email", body)
	assert.Equal(s.T(), http.StatusBadGateway, w.Code)

	var resp deliverability.RequestResult
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), id.EmailStatusPending, resp.Status)
}

func (s *VerificationHandlerSuite) TestRequestEmailVerification_BadAnswerID() {
	body, _ := json.Marshal(map[string]string{"answer_id": "not-a-uuid"})
	w := s.do(http.MethodPost, "/verification/email", body)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *VerificationHandlerSuite) TestCheckEmailStatus() {
	s.email.report = &deliverability.StatusReport{
		Status:  id.EmailStatusValid,
		Message: "Correo verificado: el mensaje fue entregado",
	}
	body, _ := json.Marshal(map[string]string{"answer_id": uuid.NewString()})

	w := s.do(http.MethodPost, "/verification/email/status", body)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var resp deliverability.StatusReport
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), id.EmailStatusValid, resp.Status)
}

func (s *VerificationHandlerSuite) TestVerifyFile() {
	s.files.result = &freshness.Result{
		Status:              id.FileStatusUpToDate,
		MostRecentDate:      "2024-06-15",
		VerificationMessage: "Registros al día (última fecha: 2024-06-15, diferencia: 0 meses)",
	}
	body, _ := json.Marshal(map[string]string{
		"answer_id": uuid.NewString(),
		"file_type": "registro_capacitacion",
	})

	w := s.do(http.MethodPost, "/verification/file", body)
	require.Equal(s.T(), http.StatusOK, w.Code)

	var resp freshness.Result
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), id.FileStatusUpToDate, resp.Status)
}

func (s *VerificationHandlerSuite) TestVerifyFile_ExtractionErrorCarriesResult() {
	s.files.result = &freshness.Result{
		Status:              id.FileStatusError,
		VerificationMessage: "No se encontró columna 'fecha' en el archivo",
	}
	s.files.err = dErrors.New(dErrors.CodeInvalidInput, "No se encontró columna 'fecha' en el archivo")
	body, _ := json.Marshal(map[string]string{
		"answer_id": uuid.NewString(),
		"file_type": "registro_capacitacion",
	})

	w := s.do(http.MethodPost, "/verification/file", body)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)

	var resp freshness.Result
	require.NoError(s.T(), json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(s.T(), id.FileStatusError, resp.Status)
	assert.Contains(s.T(), resp.VerificationMessage, "fecha")
}

func (s *VerificationHandlerSuite) TestVerifyFile_MissingFileType() {
	body, _ := json.Marshal(map[string]string{"answer_id": uuid.NewString()})
	w := s.do(http.MethodPost, "/verification/file", body)
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *VerificationHandlerSuite) TestUnauthenticatedRequestRejected() {
	validatorErr := errors.New("bad token")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := New(s.email, s.files, logger, failingValidator{err: validatorErr})
	router := chi.NewRouter()
	handler.Register(router)

	req := httptest.NewRequest(http.MethodPost, "/verification/email", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusUnauthorized, w.Code)
}

type failingValidator struct{ err error }

func (v failingValidator) ValidateToken(string) (*middleware.Claims, error) { return nil, v.err }

func (s *VerificationHandlerSuite) TestWebhook_ArrayBody() {
	w := s.do(http.MethodPost, "/webhook/sendgrid", []byte(`[
		{"event": "delivered", "email": "ana@example.cl"},
		{"event": "bounce", "email": "luis@example.cl"}
	]`))
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Len(s.T(), s.email.gotEvents, 2)
	assert.Equal(s.T(), "delivered", s.email.gotEvents[0].Event)
}

func (s *VerificationHandlerSuite) TestWebhook_SingleObjectBody() {
	w := s.do(http.MethodPost, "/webhook/sendgrid", []byte(`{"event": "delivered", "email": "ana@example.cl"}`))
	require.Equal(s.T(), http.StatusOK, w.Code)
	require.Len(s.T(), s.email.gotEvents, 1)
}

func (s *VerificationHandlerSuite) TestWebhook_MalformedJSONIsBadRequest() {
	w := s.do(http.MethodPost, "/webhook/sendgrid", []byte(`{"event": `))
	assert.Equal(s.T(), http.StatusBadRequest, w.Code)
}

func (s *VerificationHandlerSuite) TestWebhook_NeedsNoAuth() {
	req := httptest.NewRequest(http.MethodPost, "/webhook/sendgrid", bytes.NewReader([]byte(`[]`)))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(s.T(), http.StatusOK, w.Code)
}
