package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"corecompliance/internal/evidence/models"
	"corecompliance/internal/evidence/service"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
)

// maxUploadBytes bounds one answer submission including attached files.
const maxUploadBytes = 32 << 20

// filePartPrefix marks the multipart fields carrying file uploads. The label
// after the prefix is the file-type key; an empty non-file value under the
// same field name is a deletion marker.
const filePartPrefix = "file_"

// decodeAnswerForm parses a multipart answer submission into an AnswerInput.
// rule_id may be absent on PUT where the record is addressed by path.
func decodeAnswerForm(r *http.Request) (service.AnswerInput, error) {
	var input service.AnswerInput

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return input, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid multipart form")
	}

	if raw := r.FormValue("rule_id"); raw != "" {
		ruleID, err := id.ParseRuleID(raw)
		if err != nil {
			return input, err
		}
		input.RuleID = ruleID
	}

	status, err := id.ParseAnswerStatus(r.FormValue("status"))
	if err != nil {
		return input, err
	}
	input.Status = status
	input.Notes = r.FormValue("notes")
	input.Name = strings.TrimSpace(r.FormValue("name"))
	input.Email = strings.TrimSpace(r.FormValue("email"))
	input.Phone = strings.TrimSpace(r.FormValue("phone"))

	changes, err := decodeFileChanges(r.MultipartForm)
	if err != nil {
		return input, err
	}
	input.Files = changes
	return input, nil
}

// decodeFileChanges resolves the file_<label> parts into upload and deletion
// markers before anything touches the store. An upload and a deletion under
// the same label cannot both be expressed in one request; uploads win.
func decodeFileChanges(form *multipart.Form) ([]models.FileChange, error) {
	if form == nil {
		return nil, nil
	}

	changes := make([]models.FileChange, 0)
	uploaded := make(map[string]bool)

	for field, headers := range form.File {
		label, ok := strings.CutPrefix(field, filePartPrefix)
		if !ok || label == "" || len(headers) == 0 {
			continue
		}
		header := headers[0]
		part, err := header.Open()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
		}
		content, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file part")
		}
		changes = append(changes, models.FileChange{
			Label:    label,
			Filename: header.Filename,
			Content:  content,
		})
		uploaded[label] = true
	}

	for field, values := range form.Value {
		label, ok := strings.CutPrefix(field, filePartPrefix)
		if !ok || label == "" || uploaded[label] {
			continue
		}
		if len(values) == 0 || values[0] == "" {
			changes = append(changes, models.FileChange{Label: label, Delete: true})
		}
	}
	return changes, nil
}
