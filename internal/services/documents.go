package services

import (
	"strings"

	"intake-pipeline/backend/pkg/models"
)

// DocumentCatalog is the known output-document vocabulary.
type DocumentCatalog struct {
	ordered []string
	known   map[string]struct{}
}

// NewDocumentCatalog builds a catalog; an empty list falls back to models.DefaultDocumentTypes.
func NewDocumentCatalog(types []string) *DocumentCatalog {
	if len(types) == 0 {
		types = models.DefaultDocumentTypes
	}
	c := &DocumentCatalog{known: make(map[string]struct{}, len(types))}
	for _, t := range types {
		t = strings.TrimSpace(t)
		if _, dup := c.known[t]; t == "" || dup {
			continue
		}
		c.known[t] = struct{}{}
		c.ordered = append(c.ordered, t)
	}
	return c
}

// All returns a copy of the vocabulary.
func (c *DocumentCatalog) All() []string {
	return append([]string(nil), c.ordered...)
}

// Validate checks that types is a non-empty subset of the vocabulary and
// returns it de-duplicated in request order. The first unknown type is named
// in the error and nothing else is processed.
func (c *DocumentCatalog) Validate(types []string) ([]string, error) {
	if len(types) == 0 {
		return nil, &ValidationError{Field: "documentTypes", Message: "at least one document type is required"}
	}
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	for _, t := range types {
		if _, ok := c.known[t]; !ok {
			return nil, &ValidationError{
				Field:   "documentTypes",
				Value:   t,
				Message: "unknown document type; expected one of " + strings.Join(c.ordered, ", "),
			}
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out, nil
}
