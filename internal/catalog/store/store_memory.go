package store

import (
	"context"
	"sort"
	"sync"

	"corecompliance/internal/catalog/models"
	id "corecompliance/pkg/domain"
	"corecompliance/pkg/platform/sentinel"
)

// InMemory keeps the catalog in maps. It favors clarity over performance and
// backs unit tests and local runs without a database.
type InMemory struct {
	mu      sync.RWMutex
	domains map[id.DomainID]*models.Domain
	rules   map[id.RuleID]*models.Rule
}

func NewInMemory() *InMemory {
	return &InMemory{
		domains: make(map[id.DomainID]*models.Domain),
		rules:   make(map[id.RuleID]*models.Rule),
	}
}

// SeedDomain inserts a domain. Test/bootstrap use only.
func (s *InMemory) SeedDomain(_ context.Context, d *models.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.domains {
		if existing.Name == d.Name {
			return sentinel.ErrConflict
		}
	}
	cp := *d
	s.domains[d.ID] = &cp
	return nil
}

// SeedRule inserts a rule. Test/bootstrap use only.
func (s *InMemory) SeedRule(_ context.Context, r *models.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[r.DomainID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *r
	s.rules[r.ID] = &cp
	return nil
}

func (s *InMemory) ListDomains(_ context.Context) ([]*models.Domain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Domain, 0, len(s.domains))
	for _, d := range s.domains {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) ListRulesByDomain(_ context.Context, domainID id.DomainID) ([]*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Rule
	for _, r := range s.rules {
		if r.DomainID == domainID {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func (s *InMemory) FindRule(_ context.Context, ruleID id.RuleID) (*models.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *InMemory) CountRules(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rules), nil
}
