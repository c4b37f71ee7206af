package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"intake-pipeline/backend/pkg/models"
)

// MemoryCaseStore keeps cases in process memory. It backs local runs with
// db.enable=false and the service tests.
type MemoryCaseStore struct {
	mu     sync.RWMutex
	cases  map[string]*models.Case
	byForm map[string]string
}

// NewMemoryCaseStore creates an empty MemoryCaseStore.
func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{
		cases:  make(map[string]*models.Case),
		byForm: make(map[string]string),
	}
}

func (s *MemoryCaseStore) CreateCase(_ context.Context, c *models.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	stored := cloneCase(c)
	s.cases[c.ID] = stored
	if c.FormID != "" {
		s.byForm[c.FormID] = c.ID
	}
	return nil
}

func (s *MemoryCaseStore) GetCase(_ context.Context, id string) (*models.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return cloneCase(c), nil
}

func (s *MemoryCaseStore) FindCaseIDByFormID(_ context.Context, formID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byForm[formID]
	return id, ok, nil
}

func (s *MemoryCaseStore) UpdateDocumentTypes(_ context.Context, id string, types []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return ErrCaseNotFound
	}
	c.DocumentTypes = append([]string(nil), types...)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryCaseStore) AppendRegeneration(_ context.Context, id string, rec models.RegenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cases[id]
	if !ok {
		return ErrCaseNotFound
	}
	c.RegenerationHistory = append(c.RegenerationHistory, rec)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryCaseStore) Ping(context.Context) error { return nil }

func cloneCase(c *models.Case) *models.Case {
	out := *c
	out.Input = append([]byte(nil), c.Input...)
	out.DocumentTypes = append([]string(nil), c.DocumentTypes...)
	out.RegenerationHistory = append([]models.RegenerationRecord(nil), c.RegenerationHistory...)
	return &out
}
