package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"intake-pipeline/backend/pkg/models"
)

// FileSubmissionStore keeps one JSON document per form submission under dir.
// It is written before the case record exists, so it is the only place the
// original input can be recovered from when case persistence never completed.
type FileSubmissionStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileSubmissionStore creates the directory if needed.
func NewFileSubmissionStore(dir string) (*FileSubmissionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create submission dir: %w", err)
	}
	return &FileSubmissionStore{dir: dir}, nil
}

func (s *FileSubmissionStore) SaveSubmission(_ context.Context, sub *models.FormSubmission) error {
	path, err := s.path(sub.FormID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(path, sub)
}

func (s *FileSubmissionStore) GetSubmission(_ context.Context, formID string) (*models.FormSubmission, error) {
	path, err := s.path(formID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return readSubmission(path)
}

// FindSubmissionByCaseID scans every stored submission for one linked to caseID.
func (s *FileSubmissionStore) FindSubmissionByCaseID(_ context.Context, caseID string) (*models.FormSubmission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		sub, err := readSubmission(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		if sub.CaseID == caseID {
			return sub, nil
		}
	}
	return nil, ErrSubmissionNotFound
}

func (s *FileSubmissionStore) LinkCase(_ context.Context, formID, caseID string) error {
	path, err := s.path(formID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, err := readSubmission(path)
	if err != nil {
		return err
	}
	sub.CaseID = caseID
	return writeJSONAtomic(path, sub)
}

func (s *FileSubmissionStore) path(formID string) (string, error) {
	if formID == "" || strings.ContainsAny(formID, `/\`) || formID == "." || formID == ".." {
		return "", fmt.Errorf("invalid form id %q", formID)
	}
	return filepath.Join(s.dir, formID+".json"), nil
}

func readSubmission(path string) (*models.FormSubmission, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read submission: %w", err)
	}
	var sub models.FormSubmission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", filepath.Base(path), err)
	}
	return &sub, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write submission: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit submission: %w", err)
	}
	return nil
}
