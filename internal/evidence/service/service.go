// Package service implements the self-assessment operations: the evaluation
// view, answer upserts with attached files, and the dashboard aggregate.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	catalogmodels "corecompliance/internal/catalog/models"
	catalogstore "corecompliance/internal/catalog/store"
	"corecompliance/internal/evidence/models"
	"corecompliance/internal/evidence/store"
	"corecompliance/internal/platform/redis"
	id "corecompliance/pkg/domain"
	dErrors "corecompliance/pkg/domain-errors"
	"corecompliance/pkg/platform/sentinel"
	"corecompliance/pkg/requestcontext"
)

// AnswerInput carries one answer submission after transport decoding. Files
// holds the resolved upload/delete markers, one per label.
type AnswerInput struct {
	RuleID id.RuleID
	Status id.AnswerStatus
	Notes  string
	Name   string
	Email  string
	Phone  string
	Files  []models.FileChange
}

// Answer is a record together with its current files.
type Answer struct {
	Record *models.Record
	Files  []*models.File
}

// DomainEvaluation is one compliance domain with its rules and the caller's
// answers to them.
type DomainEvaluation struct {
	Domain *catalogmodels.Domain
	Rules  []*RuleEvaluation
}

// RuleEvaluation pairs a rule with the caller's record, nil when unanswered.
type RuleEvaluation struct {
	Rule   *catalogmodels.Rule
	Record *models.Record
	Files  []*models.File
}

// DashboardStats is the aggregate shown on the landing page.
type DashboardStats struct {
	Percentage float64 `json:"percentage"`
	Compliant  int     `json:"compliant"`
	Total      int     `json:"total"`
}

// Service orchestrates catalog reads and evidence writes.
type Service struct {
	catalog  catalogstore.Store
	records  store.Store
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewService(catalog catalogstore.Store, records store.Store, cache *redis.Client, cacheTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		catalog:  catalog,
		records:  records,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Evaluation returns every domain with its rules and the caller's answers.
func (s *Service) Evaluation(ctx context.Context, userID id.UserID) ([]*DomainEvaluation, error) {
	domains, err := s.catalog.ListDomains(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list domains")
	}

	records, err := s.records.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list records")
	}
	byRule := make(map[id.RuleID]*models.Record, len(records))
	for _, record := range records {
		byRule[record.RuleID] = record
	}

	evaluations := make([]*DomainEvaluation, 0, len(domains))
	for _, domain := range domains {
		rules, err := s.catalog.ListRulesByDomain(ctx, domain.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list rules")
		}
		evaluation := &DomainEvaluation{Domain: domain, Rules: make([]*RuleEvaluation, 0, len(rules))}
		for _, rule := range rules {
			entry := &RuleEvaluation{Rule: rule}
			if record, ok := byRule[rule.ID]; ok {
				entry.Record = record
				files, err := s.records.ListFiles(ctx, record.ID)
				if err != nil {
					return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list files")
				}
				entry.Files = files
			}
			evaluation.Rules = append(evaluation.Rules, entry)
		}
		evaluations = append(evaluations, evaluation)
	}
	return evaluations, nil
}

// SubmitAnswer upserts the caller's record for a rule and applies the file
// changes. The record is created lazily on first submission.
func (s *Service) SubmitAnswer(ctx context.Context, userID id.UserID, input AnswerInput) (*Answer, error) {
	if _, err := s.catalog.FindRule(ctx, input.RuleID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "rule not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load rule")
	}

	now := requestcontext.Now(ctx)
	record, created, err := s.records.GetOrCreate(ctx, input.RuleID, userID, now)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if created {
		s.logger.InfoContext(ctx, "record created",
			"record_id", record.ID.String(),
			"rule_id", input.RuleID.String(),
		)
	}
	return s.applyAnswer(ctx, record, input, now)
}

// UpdateAnswer applies the same semantics against an existing record.
//
// Errors: CodeNotFound when the record does not exist or belongs to another
// user; CodeConflict when the input names a different rule than the record's.
func (s *Service) UpdateAnswer(ctx context.Context, userID id.UserID, recordID id.RecordID, input AnswerInput) (*Answer, error) {
	record, err := s.records.FindByID(ctx, recordID, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "record not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load record")
	}
	if !input.RuleID.IsZero() && input.RuleID != record.RuleID {
		return nil, dErrors.New(dErrors.CodeConflict, "record belongs to a different rule")
	}
	return s.applyAnswer(ctx, record, input, requestcontext.Now(ctx))
}

func (s *Service) applyAnswer(ctx context.Context, record *models.Record, input AnswerInput, now time.Time) (*Answer, error) {
	record.Status = input.Status
	record.Notes = input.Notes
	record.Name = input.Name
	record.Email = input.Email
	record.Phone = input.Phone
	record.UpdatedAt = now

	if err := s.records.Update(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist answer")
	}

	for _, change := range input.Files {
		if change.Delete {
			if err := s.records.DeleteFile(ctx, record.ID, change.Label); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete file")
			}
			continue
		}
		file := &models.File{
			ID:                 id.FileID(uuid.New()),
			RecordID:           record.ID,
			Label:              change.Label,
			Filename:           change.Filename,
			Content:            change.Content,
			UploadedAt:         now,
			VerificationStatus: id.FileStatusPending,
		}
		if err := s.records.UpsertFile(ctx, file); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store file")
		}
	}

	s.invalidateDashboard(ctx, record.UserID)

	files, err := s.records.ListFiles(ctx, record.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list files")
	}
	return &Answer{Record: record, Files: files}, nil
}

// Dashboard computes the caller's compliance percentage over the whole rule
// catalog. Served from Redis when a fresh cached value exists.
func (s *Service) Dashboard(ctx context.Context, userID id.UserID) (*DashboardStats, error) {
	if cached := s.cachedDashboard(ctx, userID); cached != nil {
		return cached, nil
	}

	total, err := s.catalog.CountRules(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count rules")
	}
	compliant, err := s.records.CountByUserAndStatus(ctx, userID, id.AnswerCompliant)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count compliant records")
	}

	stats := &DashboardStats{Compliant: compliant, Total: total}
	if total > 0 {
		stats.Percentage = math.Round(float64(compliant)/float64(total)*1000) / 10
	}
	s.storeDashboard(ctx, userID, stats)
	return stats, nil
}

func dashboardKey(userID id.UserID) string {
	return fmt.Sprintf("corecompliance:dashboard:%s", userID.String())
}

func (s *Service) cachedDashboard(ctx context.Context, userID id.UserID) *DashboardStats {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, dashboardKey(userID)).Bytes()
	if err != nil {
		return nil
	}
	var stats DashboardStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil
	}
	return &stats
}

func (s *Service) storeDashboard(ctx context.Context, userID id.UserID, stats *DashboardStats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, dashboardKey(userID), raw, s.cacheTTL).Err(); err != nil {
		s.logger.WarnContext(ctx, "dashboard cache write failed", "error", err)
	}
}

func (s *Service) invalidateDashboard(ctx context.Context, userID id.UserID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, dashboardKey(userID)).Err(); err != nil {
		s.logger.WarnContext(ctx, "dashboard cache invalidation failed", "error", err)
	}
}
