package models

import (
	"encoding/json"
	"time"
)

// Case is the durable record created once a form submission has been persisted.
// Its ID is the canonical job identifier.
type Case struct {
	ID                  string               `json:"id"`
	FormID              string               `json:"form_id"`
	Input               json.RawMessage      `json:"input"`
	DocumentTypes       []string             `json:"document_types"`
	RegenerationHistory []RegenerationRecord `json:"regeneration_history,omitempty"`
	CreatedAt           time.Time            `json:"created_at"`
	UpdatedAt           time.Time            `json:"updated_at"`
}

// RegenerationRecord is one audit entry appended on document regeneration
type RegenerationRecord struct {
	Timestamp     time.Time `json:"timestamp"`
	DocumentTypes []string  `json:"documentTypes"`
	Trigger       string    `json:"trigger"`
}
