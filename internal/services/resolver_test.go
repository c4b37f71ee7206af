package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/pkg/models"
)

func TestValidateJobID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"case-1", true},
		{"temp-42", true},
		{"7b0c7a52-8d55-4a6c-9f0e-2f1f3c1b2a10", true},
		{"", false},
		{"temp-", false},
		{"-leading-dash", false},
		{"has space", false},
		{"../etc/passwd", false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			err := ValidateJobID(tt.id)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidInput)
			}
		})
	}
}

func TestIdentifierResolver_Placeholder(t *testing.T) {
	cases := repository.NewMemoryCaseStore()
	r := NewIdentifierResolver(cases, &NoOpLogger{})
	ctx := context.Background()

	res := r.Resolve(ctx, "temp-42")
	assert.True(t, res.Placeholder)
	assert.False(t, res.Resolved)
	assert.Equal(t, "42", res.FormID)

	require.NoError(t, cases.CreateCase(ctx, &models.Case{ID: "case-abc", FormID: "42"}))

	res = r.Resolve(ctx, "temp-42")
	assert.True(t, res.Resolved)
	assert.Equal(t, "case-abc", res.CanonicalID)
	assert.Equal(t, "temp-42", res.RawID)
}

func TestIdentifierResolver_CanonicalPassesThrough(t *testing.T) {
	cases := new(MockCaseStore)
	r := NewIdentifierResolver(cases, &NoOpLogger{})

	res := r.Resolve(context.Background(), "case-abc")
	assert.Equal(t, Resolution{RawID: "case-abc", CanonicalID: "case-abc", Resolved: true}, res)
	cases.AssertNotCalled(t, "FindCaseIDByFormID", mock.Anything, mock.Anything)
}

func TestIdentifierResolver_LookupErrorDegrades(t *testing.T) {
	cases := new(MockCaseStore)
	cases.On("FindCaseIDByFormID", mock.Anything, "42").Return("", false, errors.New("connection reset"))
	r := NewIdentifierResolver(cases, &NoOpLogger{})

	res := r.Resolve(context.Background(), "temp-42")
	assert.True(t, res.Resolved)
	assert.Equal(t, "temp-42", res.CanonicalID)
	cases.AssertExpectations(t)
}
