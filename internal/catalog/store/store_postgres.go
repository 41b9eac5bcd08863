package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"corecompliance/internal/catalog/models"
	id "corecompliance/pkg/domain"
	"corecompliance/pkg/platform/sentinel"
)

// Postgres reads the catalog from PostgreSQL. required_files is stored as
// JSONB so the admin surface can evolve labels without schema changes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) ListDomains(ctx context.Context) ([]*models.Domain, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description
		FROM compliance_domains
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list domains: %w", err)
	}
	defer rows.Close()

	var out []*models.Domain
	for rows.Next() {
		var (
			d   models.Domain
			uid uuid.UUID
		)
		if err := rows.Scan(&uid, &d.Name, &d.Description); err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		d.ID = id.DomainID(uid)
		out = append(out, &d)
	}
	return out, rows.Err()
}

func (s *Postgres) ListRulesByDomain(ctx context.Context, domainID id.DomainID) ([]*models.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, domain_id, text, reference, suggested_action,
		       requires_name, requires_mail, requires_phone, required_files, created_at
		FROM control_rules
		WHERE domain_id = $1
		ORDER BY reference
	`, uuid.UUID(domainID))
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (s *Postgres) FindRule(ctx context.Context, ruleID id.RuleID) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, domain_id, text, reference, suggested_action,
		       requires_name, requires_mail, requires_phone, required_files, created_at
		FROM control_rules
		WHERE id = $1
	`, uuid.UUID(ruleID))
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, err
	}
	return rule, nil
}

func (s *Postgres) CountRules(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM control_rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rules: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.Rule, error) {
	var (
		rule          models.Rule
		ruleUUID      uuid.UUID
		domainUUID    uuid.UUID
		requiredFiles []byte
	)
	err := row.Scan(&ruleUUID, &domainUUID, &rule.Text, &rule.Reference, &rule.SuggestedAction,
		&rule.RequiresName, &rule.RequiresMail, &rule.RequiresPhone, &requiredFiles, &rule.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	rule.ID = id.RuleID(ruleUUID)
	rule.DomainID = id.DomainID(domainUUID)
	if len(requiredFiles) > 0 {
		if err := json.Unmarshal(requiredFiles, &rule.RequiredFiles); err != nil {
			return nil, fmt.Errorf("decode required_files: %w", err)
		}
	}
	return &rule, nil
}
