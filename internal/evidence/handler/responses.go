package handler

import (
	catalogmodels "corecompliance/internal/catalog/models"
	"corecompliance/internal/evidence/models"
	"corecompliance/internal/evidence/service"
)

type fileResponse struct {
	ID                  string `json:"id"`
	FileType            string `json:"file_type"`
	Filename            string `json:"file"`
	UploadedAt          string `json:"uploaded_at"`
	VerificationStatus  string `json:"file_verification_status"`
	VerificationMessage string `json:"file_verification_message"`
}

type answerResponse struct {
	ID                string         `json:"id"`
	Rule              string         `json:"rule"`
	Status            string         `json:"status"`
	Notes             string         `json:"notes"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Phone             string         `json:"phone"`
	EmailStatus       string         `json:"email_status"`
	BaselineRequests  *int64         `json:"email_verification_baseline_requests"`
	BaselineDelivered *int64         `json:"email_verification_baseline_delivered"`
	LastUpdated       string         `json:"last_updated"`
	Files             []fileResponse `json:"files"`
}

type ruleResponse struct {
	ID              string             `json:"id"`
	Text            string             `json:"text"`
	Reference       string             `json:"reference"`
	SuggestedAction string             `json:"suggested_action"`
	RequiresName    bool               `json:"requires_name"`
	RequiresMail    bool               `json:"requires_mail"`
	RequiresPhone   bool               `json:"requires_phone"`
	RequiredFiles   map[string]float64 `json:"required_files"`
	Answer          *answerResponse    `json:"answer"`
}

type domainResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Rules       []ruleResponse `json:"rules"`
}

func fromFile(file *models.File) fileResponse {
	return fileResponse{
		ID:                  file.ID.String(),
		FileType:            file.Label,
		Filename:            file.Filename,
		UploadedAt:          file.UploadedAt.Format("2006-01-02T15:04:05Z07:00"),
		VerificationStatus:  string(file.VerificationStatus),
		VerificationMessage: file.VerificationMessage,
	}
}

func fromAnswer(record *models.Record, files []*models.File) *answerResponse {
	resp := &answerResponse{
		ID:                record.ID.String(),
		Rule:              record.RuleID.String(),
		Status:            string(record.Status),
		Notes:             record.Notes,
		Name:              record.Name,
		Email:             record.Email,
		Phone:             record.Phone,
		EmailStatus:       string(record.EmailStatus),
		BaselineRequests:  record.BaselineRequests,
		BaselineDelivered: record.BaselineDelivered,
		LastUpdated:       record.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		Files:             make([]fileResponse, 0, len(files)),
	}
	for _, file := range files {
		resp.Files = append(resp.Files, fromFile(file))
	}
	return resp
}

func fromRule(rule *catalogmodels.Rule, entry *service.RuleEvaluation) ruleResponse {
	resp := ruleResponse{
		ID:              rule.ID.String(),
		Text:            rule.Text,
		Reference:       rule.Reference,
		SuggestedAction: rule.SuggestedAction,
		RequiresName:    rule.RequiresName,
		RequiresMail:    rule.RequiresMail,
		RequiresPhone:   rule.RequiresPhone,
		RequiredFiles:   rule.RequiredFiles,
	}
	if entry.Record != nil {
		resp.Answer = fromAnswer(entry.Record, entry.Files)
	}
	return resp
}

func fromEvaluation(evaluations []*service.DomainEvaluation) []domainResponse {
	out := make([]domainResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		domain := domainResponse{
			ID:          evaluation.Domain.ID.String(),
			Name:        evaluation.Domain.Name,
			Description: evaluation.Domain.Description,
			Rules:       make([]ruleResponse, 0, len(evaluation.Rules)),
		}
		for _, entry := range evaluation.Rules {
			domain.Rules = append(domain.Rules, fromRule(entry.Rule, entry))
		}
		out = append(out, domain)
	}
	return out
}
