// Package store persists the rule catalog. The catalog is written by an
// external admin surface; this service reads it and only writes through Seed
// helpers used by tests and local bootstrap.
package store

import (
	"context"

	"corecompliance/internal/catalog/models"
	id "corecompliance/pkg/domain"
)

// Store is the catalog read surface the rest of the service depends on.
type Store interface {
	ListDomains(ctx context.Context) ([]*models.Domain, error)
	ListRulesByDomain(ctx context.Context, domainID id.DomainID) ([]*models.Rule, error)
	FindRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error)
	CountRules(ctx context.Context) (int, error)
}
