package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"corecompliance/internal/catalog/models"
	id "corecompliance/pkg/domain"
	"corecompliance/pkg/platform/sentinel"
)

func seedDomain(t *testing.T, s *InMemory, name string) *models.Domain {
	t.Helper()
	domain := &models.Domain{ID: id.DomainID(uuid.New()), Name: name}
	require.NoError(t, s.SeedDomain(context.Background(), domain))
	return domain
}

func seedRule(t *testing.T, s *InMemory, domainID id.DomainID, reference string) *models.Rule {
	t.Helper()
	rule := &models.Rule{
		ID:        id.RuleID(uuid.New()),
		DomainID:  domainID,
		Text:      "Control " + reference,
		Reference: reference,
	}
	require.NoError(t, s.SeedRule(context.Background(), rule))
	return rule
}

func TestSeedDomain_RejectsDuplicateName(t *testing.T) {
	s := NewInMemory()
	seedDomain(t, s, "Gobernanza")

	err := s.SeedDomain(context.Background(), &models.Domain{ID: id.DomainID(uuid.New()), Name: "Gobernanza"})
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestSeedRule_RequiresDomain(t *testing.T) {
	s := NewInMemory()
	err := s.SeedRule(context.Background(), &models.Rule{
		ID:       id.RuleID(uuid.New()),
		DomainID: id.DomainID(uuid.New()),
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListDomains_SortedByName(t *testing.T) {
	s := NewInMemory()
	seedDomain(t, s, "Protección")
	seedDomain(t, s, "Gobernanza")

	domains, err := s.ListDomains(context.Background())
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "Gobernanza", domains[0].Name)
	assert.Equal(t, "Protección", domains[1].Name)
}

func TestListRulesByDomain_SortedByReference(t *testing.T) {
	s := NewInMemory()
	domain := seedDomain(t, s, "Gobernanza")
	other := seedDomain(t, s, "Protección")
	seedRule(t, s, domain.ID, "A.2")
	seedRule(t, s, domain.ID, "A.1")
	seedRule(t, s, other.ID, "B.1")

	rules, err := s.ListRulesByDomain(context.Background(), domain.ID)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "A.1", rules[0].Reference)
	assert.Equal(t, "A.2", rules[1].Reference)
}

func TestFindRule(t *testing.T) {
	s := NewInMemory()
	domain := seedDomain(t, s, "Gobernanza")
	rule := seedRule(t, s, domain.ID, "A.1")

	found, err := s.FindRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, rule.ID, found.ID)

	_, err = s.FindRule(context.Background(), id.RuleID(uuid.New()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCountRules(t *testing.T) {
	s := NewInMemory()
	domain := seedDomain(t, s, "Gobernanza")

	count, err := s.CountRules(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	seedRule(t, s, domain.ID, "A.1")
	seedRule(t, s, domain.ID, "A.2")

	count, err = s.CountRules(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStoreReturnsCopies(t *testing.T) {
	s := NewInMemory()
	domain := seedDomain(t, s, "Gobernanza")
	rule := seedRule(t, s, domain.ID, "A.1")

	found, err := s.FindRule(context.Background(), rule.ID)
	require.NoError(t, err)
	found.Text = "mutated"

	again, err := s.FindRule(context.Background(), rule.ID)
	require.NoError(t, err)
	assert.Equal(t, "Control A.1", again.Text, "callers cannot mutate stored state")
}
