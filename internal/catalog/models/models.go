// Package models defines the rule catalog: compliance domains grouping
// control rules, plus the evidentiary requirements attached to each rule.
// The catalog is administered elsewhere; this service only reads it.
package models

import (
	"time"

	id "corecompliance/pkg/domain"
)

// Domain groups related control rules, e.g. "Gobernanza" or "Protección".
type Domain struct {
	ID          id.DomainID `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
}

// Rule is a single control an organization assesses itself against.
//
// RequiredFiles maps a file-type label to the recency threshold in months a
// file of that label must satisfy. Thresholds are usually whole months but
// fractional values are accepted. A missing label or a zero threshold means
// no freshness verification applies to that label.
type Rule struct {
	ID              id.RuleID          `json:"id"`
	DomainID        id.DomainID        `json:"domain_id"`
	Text            string             `json:"text"`
	Reference       string             `json:"reference"`
	SuggestedAction string             `json:"suggested_action"`
	RequiresName    bool               `json:"requires_name"`
	RequiresMail    bool               `json:"requires_mail"`
	RequiresPhone   bool               `json:"requires_phone"`
	RequiredFiles   map[string]float64 `json:"required_files"`
	CreatedAt       time.Time          `json:"-"`
}

// FreshnessThreshold returns the required recency in months for a file-type
// label and whether verification applies at all.
func (r *Rule) FreshnessThreshold(label string) (float64, bool) {
	months, ok := r.RequiredFiles[label]
	if !ok || months == 0 {
		return 0, false
	}
	return months, true
}
