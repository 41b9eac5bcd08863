package domain

import dErrors "corecompliance/pkg/domain-errors"

// AnswerStatus is the user's self-assessed compliance state for one rule.
type AnswerStatus string

const (
	AnswerCompliant    AnswerStatus = "COMPLIANT"
	AnswerNonCompliant AnswerStatus = "NON_COMPLIANT"
	AnswerPartial      AnswerStatus = "PARTIAL"
	AnswerNotEvaluated AnswerStatus = "NOT_EVALUATED"
)

var validAnswerStatuses = map[AnswerStatus]bool{
	AnswerCompliant:    true,
	AnswerNonCompliant: true,
	AnswerPartial:      true,
	AnswerNotEvaluated: true,
}

// ParseAnswerStatus constructs an AnswerStatus from external input.
//
// Errors: CodeInvalidInput when the value is unsupported. An empty string is
// accepted and normalized to AnswerNotEvaluated so partial updates can omit
// the field.
func ParseAnswerStatus(s string) (AnswerStatus, error) {
	if s == "" {
		return AnswerNotEvaluated, nil
	}
	st := AnswerStatus(s)
	if !validAnswerStatuses[st] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid answer status")
	}
	return st, nil
}

// EmailStatus describes whether a verification email is believed to have
// reached its recipient. The empty value means no verification was requested.
type EmailStatus string

const (
	EmailStatusUnset   EmailStatus = ""
	EmailStatusPending EmailStatus = "pending"
	EmailStatusValid   EmailStatus = "valid"
	EmailStatusBounced EmailStatus = "bounced"
)

// FileStatus is the freshness tier of an attached tabular file.
type FileStatus string

const (
	FileStatusPending      FileStatus = "pending"
	FileStatusUpToDate     FileStatus = "up_to_date"
	FileStatusOutdated     FileStatus = "outdated"
	FileStatusVeryOutdated FileStatus = "very_outdated"
	FileStatusError        FileStatus = "error"
)
