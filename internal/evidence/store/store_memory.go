package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"corecompliance/internal/evidence/models"
	id "corecompliance/pkg/domain"
	"corecompliance/pkg/platform/sentinel"
)

// InMemory keeps records and files in maps. It backs unit tests and local
// runs; the Postgres store is the production path.
type InMemory struct {
	mu      sync.RWMutex
	records map[id.RecordID]*models.Record
	// byPair indexes records by rule+user for the uniqueness invariant.
	byPair map[pairKey]id.RecordID
	files  map[fileKey]*models.File
}

type pairKey struct {
	rule id.RuleID
	user id.UserID
}

type fileKey struct {
	record id.RecordID
	label  string
}

func NewInMemory() *InMemory {
	return &InMemory{
		records: make(map[id.RecordID]*models.Record),
		byPair:  make(map[pairKey]id.RecordID),
		files:   make(map[fileKey]*models.File),
	}
}

func (s *InMemory) GetOrCreate(_ context.Context, ruleID id.RuleID, userID id.UserID, now time.Time) (*models.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{rule: ruleID, user: userID}
	if recordID, ok := s.byPair[key]; ok {
		cp := *s.records[recordID]
		return &cp, false, nil
	}
	record, err := models.NewRecord(id.RecordID(uuid.New()), ruleID, userID, now)
	if err != nil {
		return nil, false, err
	}
	s.records[record.ID] = record
	s.byPair[key] = record.ID
	cp := *record
	return &cp, true, nil
}

func (s *InMemory) FindByID(_ context.Context, recordID id.RecordID, userID id.UserID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok || record.UserID != userID {
		return nil, sentinel.ErrNotFound
	}
	cp := *record
	return &cp, nil
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, record := range s.records {
		if record.UserID == userID {
			cp := *record
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemory) ListByEmail(_ context.Context, email string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Record
	for _, record := range s.records {
		if record.Email != "" && strings.EqualFold(record.Email, email) {
			cp := *record
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *InMemory) Update(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	existing.Status = record.Status
	existing.Notes = record.Notes
	existing.Name = record.Name
	existing.Email = record.Email
	existing.Phone = record.Phone
	existing.UpdatedAt = record.UpdatedAt
	return nil
}

func (s *InMemory) SetEmailVerification(_ context.Context, recordID id.RecordID, status id.EmailStatus, baselineRequests, baselineDelivered *int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.EmailStatus = status
	record.BaselineRequests = copyInt64(baselineRequests)
	record.BaselineDelivered = copyInt64(baselineDelivered)
	record.UpdatedAt = now
	return nil
}

func (s *InMemory) SetEmailStatus(_ context.Context, recordID id.RecordID, status id.EmailStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[recordID]
	if !ok {
		return sentinel.ErrNotFound
	}
	record.EmailStatus = status
	record.UpdatedAt = now
	return nil
}

func (s *InMemory) CountByUserAndStatus(_ context.Context, userID id.UserID, status id.AnswerStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.records {
		if record.UserID == userID && record.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) UpsertFile(_ context.Context, file *models.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[file.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *file
	cp.Content = append([]byte(nil), file.Content...)
	s.files[fileKey{record: file.RecordID, label: file.Label}] = &cp
	return nil
}

func (s *InMemory) DeleteFile(_ context.Context, recordID id.RecordID, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, fileKey{record: recordID, label: label})
	return nil
}

func (s *InMemory) FindFile(_ context.Context, recordID id.RecordID, label string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.files[fileKey{record: recordID, label: label}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *file
	cp.Content = append([]byte(nil), file.Content...)
	return &cp, nil
}

func (s *InMemory) ListFiles(_ context.Context, recordID id.RecordID) ([]*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.File
	for key, file := range s.files {
		if key.record == recordID {
			cp := *file
			cp.Content = append([]byte(nil), file.Content...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out, nil
}

func (s *InMemory) SetFileVerification(_ context.Context, fileID id.FileID, status id.FileStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, file := range s.files {
		if file.ID == fileID {
			file.VerificationStatus = status
			file.VerificationMessage = message
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}
