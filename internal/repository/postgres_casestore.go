package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"intake-pipeline/backend/pkg/models"
)

// PostgresCaseStore is a PostgreSQL implementation of the CaseStore interface.
type PostgresCaseStore struct {
	db *pgxpool.Pool
}

// NewPostgresCaseStore creates a new PostgresCaseStore.
func NewPostgresCaseStore(db *pgxpool.Pool) *PostgresCaseStore {
	return &PostgresCaseStore{db: db}
}

// CreateCase inserts a case record.
func (s *PostgresCaseStore) CreateCase(ctx context.Context, c *models.Case) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.DocumentTypes == nil {
		c.DocumentTypes = []string{}
	}
	if len(c.Input) == 0 {
		c.Input = []byte("{}")
	}
	now := time.Now().UTC()
	_, err := s.db.Exec(ctx,
		"INSERT INTO cases (id, form_id, input, document_types, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $5)",
		c.ID, c.FormID, []byte(c.Input), c.DocumentTypes, now)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	c.CreatedAt, c.UpdatedAt = now, now
	return nil
}

// GetCase retrieves a case by its ID.
func (s *PostgresCaseStore) GetCase(ctx context.Context, id string) (*models.Case, error) {
	var (
		c       models.Case
		input   []byte
		history []byte
	)
	err := s.db.QueryRow(ctx,
		"SELECT id, form_id, input, document_types, regeneration_history, created_at, updated_at FROM cases WHERE id = $1", id).
		Scan(&c.ID, &c.FormID, &input, &c.DocumentTypes, &history, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select case: %w", err)
	}
	c.Input = json.RawMessage(input)
	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.RegenerationHistory); err != nil {
			return nil, fmt.Errorf("decode regeneration history: %w", err)
		}
	}
	return &c, nil
}

// FindCaseIDByFormID looks up the canonical ID for a form.
func (s *PostgresCaseStore) FindCaseIDByFormID(ctx context.Context, formID string) (string, bool, error) {
	var id string
	err := s.db.QueryRow(ctx, "SELECT id FROM cases WHERE form_id = $1", formID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("select case by form: %w", err)
	}
	return id, true, nil
}

// UpdateDocumentTypes replaces the stored document selection.
func (s *PostgresCaseStore) UpdateDocumentTypes(ctx context.Context, id string, types []string) error {
	tag, err := s.db.Exec(ctx,
		"UPDATE cases SET document_types = $1, updated_at = now() WHERE id = $2", types, id)
	if err != nil {
		return fmt.Errorf("update document types: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// AppendRegeneration appends rec to the JSONB history array.
func (s *PostgresCaseStore) AppendRegeneration(ctx context.Context, id string, rec models.RegenerationRecord) error {
	entry, err := json.Marshal([]models.RegenerationRecord{rec})
	if err != nil {
		return fmt.Errorf("encode regeneration record: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE cases SET regeneration_history = regeneration_history || $1::jsonb, updated_at = now() WHERE id = $2",
		string(entry), id)
	if err != nil {
		return fmt.Errorf("append regeneration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCaseNotFound
	}
	return nil
}

// Ping checks the pool.
func (s *PostgresCaseStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
