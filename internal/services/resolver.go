package services

import (
	"context"
	"regexp"
	"strings"

	"intake-pipeline/backend/internal/repository"
)

const placeholderPrefix = "temp-"

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// Resolution is the outcome of mapping a caller-supplied id to a job id.
type Resolution struct {
	RawID       string
	CanonicalID string
	FormID      string
	Placeholder bool
	// Resolved is false only for a placeholder whose case record does not exist yet.
	Resolved bool
}

// PlaceholderID returns the client-visible id issued for a form before its case exists.
func PlaceholderID(formID string) string {
	return placeholderPrefix + formID
}

// ParsePlaceholder extracts the form id from a placeholder identifier.
func ParsePlaceholder(rawID string) (string, bool) {
	formID, ok := strings.CutPrefix(rawID, placeholderPrefix)
	if !ok || formID == "" {
		return "", false
	}
	return formID, true
}

// ValidateJobID rejects identifiers that can never name a job.
func ValidateJobID(rawID string) error {
	if rawID == "" {
		return &ValidationError{Field: "id", Message: "job id is required"}
	}
	if rawID == placeholderPrefix {
		return &ValidationError{Field: "id", Value: rawID, Message: "placeholder id carries no form id"}
	}
	if !jobIDPattern.MatchString(rawID) {
		return &ValidationError{Field: "id", Value: rawID, Message: "malformed job id"}
	}
	return nil
}

// IdentifierResolver maps placeholder ids onto canonical case ids.
type IdentifierResolver struct {
	cases  repository.CaseStore
	logger Logger
}

// NewIdentifierResolver creates a new IdentifierResolver.
func NewIdentifierResolver(cases repository.CaseStore, logger Logger) *IdentifierResolver {
	return &IdentifierResolver{cases: cases, logger: logger}
}

// Resolve never fails. A lookup error degrades to treating rawID as canonical.
func (r *IdentifierResolver) Resolve(ctx context.Context, rawID string) Resolution {
	formID, ok := ParsePlaceholder(rawID)
	if !ok {
		return Resolution{RawID: rawID, CanonicalID: rawID, Resolved: true}
	}

	res := Resolution{RawID: rawID, FormID: formID, Placeholder: true}
	caseID, found, err := r.cases.FindCaseIDByFormID(ctx, formID)
	switch {
	case err != nil:
		r.logger.Warn("placeholder lookup failed, using raw id", "raw_id", rawID, "error", err)
		res.CanonicalID = rawID
		res.Resolved = true
	case found:
		res.CanonicalID = caseID
		res.Resolved = true
	}
	return res
}
