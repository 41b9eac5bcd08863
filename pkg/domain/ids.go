// Package domain holds shared value types used across modules: typed entity
// IDs and the enumerations surfaced through the API.
package domain

import (
	"github.com/google/uuid"

	dErrors "corecompliance/pkg/domain-errors"
)

// Typed IDs keep rule/user/record/file identifiers from being swapped at
// compile time. Construct via the Parse helpers at trust boundaries; direct
// casting bypasses validation.
type (
	UserID   uuid.UUID
	DomainID uuid.UUID
	RuleID   uuid.UUID
	RecordID uuid.UUID
	FileID   uuid.UUID
)

func (id UserID) String() string   { return uuid.UUID(id).String() }
func (id DomainID) String() string { return uuid.UUID(id).String() }
func (id RuleID) String() string   { return uuid.UUID(id).String() }
func (id RecordID) String() string { return uuid.UUID(id).String() }
func (id FileID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RuleID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// ParseUserID parses external input into a UserID.
//
// Errors: CodeInvalidInput when the value is empty, malformed, or the nil
// UUID; no other errors are expected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseDomainID(s string) (DomainID, error) {
	u, err := parseUUID(s, "domain id")
	return DomainID(u), err
}

func ParseRuleID(s string) (RuleID, error) {
	u, err := parseUUID(s, "rule id")
	return RuleID(u), err
}

func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s, "record id")
	return RecordID(u), err
}

func ParseFileID(s string) (FileID, error) {
	u, err := parseUUID(s, "file id")
	return FileID(u), err
}

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" cannot be the nil UUID")
	}
	return u, nil
}
