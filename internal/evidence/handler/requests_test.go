package handler

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
)

type formBuilder struct {
	t      *testing.T
	buf    bytes.Buffer
	writer *multipart.Writer
}

func newForm(t *testing.T) *formBuilder {
	b := &formBuilder{t: t}
	b.writer = multipart.NewWriter(&b.buf)
	return b
}

func (b *formBuilder) field(name, value string) *formBuilder {
	require.NoError(b.t, b.writer.WriteField(name, value))
	return b
}

func (b *formBuilder) file(field, filename, content string) *formBuilder {
	part, err := b.writer.CreateFormFile(field, filename)
	require.NoError(b.t, err)
	_, err = part.Write([]byte(content))
	require.NoError(b.t, err)
	return b
}

func (b *formBuilder) build() (body *bytes.Buffer, contentType string) {
	require.NoError(b.t, b.writer.Close())
	return &b.buf, b.writer.FormDataContentType()
}

func TestDecodeAnswerForm(t *testing.T) {
	ruleID := uuid.New()

	body, contentType := newForm(t).
		field("rule_id", ruleID.String()).
		field("status", "COMPLIANT").
		field("notes", "auditado en junio").
		field("name", "  Ana Pérez  ").
		field("email", " ana@example.cl ").
		field("phone", "+56 9 1234 5678").
		file("file_registro_capacitacion", "registro.csv", "fecha\n2024-06-01\n").
		build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)

	assert.Equal(t, id.RuleID(ruleID), input.RuleID)
	assert.Equal(t, id.AnswerCompliant, input.Status)
	assert.Equal(t, "auditado en junio", input.Notes)
	assert.Equal(t, "Ana Pérez", input.Name, "contact fields are trimmed")
	assert.Equal(t, "ana@example.cl", input.Email)

	require.Len(t, input.Files, 1)
	assert.Equal(t, "registro_capacitacion", input.Files[0].Label)
	assert.Equal(t, "registro.csv", input.Files[0].Filename)
	assert.Equal(t, []byte("fecha\n2024-06-01\n"), input.Files[0].Content)
	assert.False(t, input.Files[0].Delete)
}

func TestDecodeAnswerForm_OmittedFields(t *testing.T) {
	body, contentType := newForm(t).field("notes", "solo notas").build()

	r := httptest.NewRequest("PUT", "/answers/x", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)
	assert.True(t, input.RuleID.IsZero(), "rule_id is optional")
	assert.Equal(t, id.AnswerNotEvaluated, input.Status, "empty status normalizes")
	assert.Empty(t, input.Files)
}

func TestDecodeAnswerForm_InvalidStatus(t *testing.T) {
	body, contentType := newForm(t).field("status", "MAYBE").build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	_, err := decodeAnswerForm(r)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func TestDecodeAnswerForm_BadRuleID(t *testing.T) {
	body, contentType := newForm(t).field("rule_id", "not-a-uuid").build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	_, err := decodeAnswerForm(r)
	assert.Error(t, err)
}

func TestDecodeAnswerForm_NotMultipart(t *testing.T) {
	r := httptest.NewRequest("POST", "/answers", bytes.NewBufferString(`{"rule_id":"x"}`))
	r.Header.Set("Content-Type", "application/json")

	_, err := decodeAnswerForm(r)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestDecodeFileChanges_DeletionMarker(t *testing.T) {
	body, contentType := newForm(t).
		field("file_registro_capacitacion", "").
		build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)
	require.Len(t, input.Files, 1)
	assert.Equal(t, models.FileChange{Label: "registro_capacitacion", Delete: true}, input.Files[0])
}

func TestDecodeFileChanges_UploadWinsOverDeletion(t *testing.T) {
	body, contentType := newForm(t).
		field("file_registro", "").
		file("file_registro", "v2.csv", "fecha\n").
		build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)
	require.Len(t, input.Files, 1)
	assert.False(t, input.Files[0].Delete)
	assert.Equal(t, "v2.csv", input.Files[0].Filename)
}

func TestDecodeFileChanges_IgnoresUnprefixedAndBareFields(t *testing.T) {
	body, contentType := newForm(t).
		field("notes", "").
		field("file_", "").
		field("attachment", "x").
		build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)
	assert.Empty(t, input.Files)
}

func TestDecodeFileChanges_NonEmptyValueIsNotADeletion(t *testing.T) {
	body, contentType := newForm(t).
		field("file_registro", "keep").
		build()

	r := httptest.NewRequest("POST", "/answers", body)
	r.Header.Set("Content-Type", contentType)

	input, err := decodeAnswerForm(r)
	require.NoError(t, err)
	assert.Empty(t, input.Files)
}
