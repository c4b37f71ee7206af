package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-pipeline/backend/pkg/models"
)

func TestSubmission_AcceptsAndRunsPipeline(t *testing.T) {
	f := newFixture(t, succeeding(), nil, InvokerConfig{})
	svc := f.submission(t)
	ctx := context.Background()

	receipt, err := svc.Submit(ctx, []byte(`{"formId":"f1","data":{"plaintiff":"Acme"},"documentTypes":["summons"]}`))
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "temp-f1", receipt.JobID)
	assert.Equal(t, "/pipeline-status/temp-f1", receipt.StatusURL)
	assert.Equal(t, "/jobs/temp-f1/stream", receipt.StreamURL)
	assert.Equal(t, []string{"summons"}, receipt.DocumentTypes)

	svc.Wait()

	caseID, found, err := f.cases.FindCaseIDByFormID(ctx, "f1")
	require.NoError(t, err)
	require.True(t, found)

	c, err := f.cases.GetCase(ctx, caseID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"plaintiff":"Acme"}`, string(c.Input))

	sub, err := f.submissions.FindSubmissionByCaseID(ctx, caseID)
	require.NoError(t, err)
	assert.Equal(t, "f1", sub.FormID)

	view, err := f.query().Query(ctx, "temp-f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, view.Status)
	assert.Equal(t, caseID, view.RealCaseID)
}

func TestSubmission_DefaultsDocumentTypes(t *testing.T) {
	f := newFixture(t, succeeding(), nil, InvokerConfig{})
	svc := f.submission(t)

	receipt, err := svc.Submit(context.Background(), []byte(`{"formId":"f1","data":{}}`))
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDocumentTypes, receipt.DocumentTypes)
}

func TestSubmission_RejectsInvalidBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"formId":`},
		{"missing form id", `{"data":{}}`},
		{"missing data", `{"formId":"f1"}`},
		{"data not object", `{"formId":"f1","data":[1,2]}`},
		{"form id with slash", `{"formId":"../x","data":{}}`},
		{"empty document list", `{"formId":"f1","data":{},"documentTypes":[]}`},
		{"unknown document", `{"formId":"f1","data":{},"documentTypes":["memo"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, succeeding(), nil, InvokerConfig{})
			svc := f.submission(t)

			_, err := svc.Submit(context.Background(), []byte(tt.body))
			assert.ErrorIs(t, err, ErrInvalidInput)

			_, err = f.submissions.GetSubmission(context.Background(), "f1")
			assert.Error(t, err)
		})
	}
}

func TestSubmission_CasePersistenceFailureMarksJobFailed(t *testing.T) {
	var caseID string
	cases := new(MockCaseStore)
	cases.On("FindCaseIDByFormID", mock.Anything, "f1").Return("", false, nil)
	cases.On("CreateCase", mock.Anything, mock.AnythingOfType("*models.Case")).
		Run(func(args mock.Arguments) { caseID = args.Get(1).(*models.Case).ID }).
		Return(errors.New("unique violation"))
	f := newFixture(t, succeeding(), cases, InvokerConfig{})
	svc := f.submission(t)

	_, err := svc.Submit(context.Background(), []byte(`{"formId":"f1","data":{}}`))
	require.NoError(t, err)
	svc.Wait()

	require.NotEmpty(t, caseID)
	st, ok := f.store.Get(caseID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, st.Status)
	assert.Contains(t, st.Error, "unique violation")
	assert.Zero(t, f.client.calls.Load())

	view, err := f.query().Query(context.Background(), "temp-f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, view.Status)
	assert.Equal(t, ClassUnavailable, view.ErrorClass)
	assert.Contains(t, view.Error, "unique violation")

	// the raw submission is still recoverable
	sub, err := f.submissions.GetSubmission(context.Background(), "f1")
	require.NoError(t, err)
	assert.Empty(t, sub.CaseID)
}

func TestSubmission_ResubmissionReusesCase(t *testing.T) {
	f := newFixture(t, succeeding(), nil, InvokerConfig{})
	ctx := context.Background()
	require.NoError(t, f.cases.CreateCase(ctx, &models.Case{ID: "case-1", FormID: "f1"}))
	svc := f.submission(t)

	_, err := svc.Submit(ctx, []byte(`{"formId":"f1","data":{"v":2}}`))
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "case-1", f.client.lastInput(t).CaseID)
	st, _ := f.store.Get("case-1")
	assert.Equal(t, models.StatusSuccess, st.Status)
}

func TestSubmission_CaseLookupFailureMarksPlaceholderFailed(t *testing.T) {
	cases := new(MockCaseStore)
	cases.On("FindCaseIDByFormID", mock.Anything, "f3").Return("", false, errors.New("db down"))
	f := newFixture(t, succeeding(), cases, InvokerConfig{})
	svc := f.submission(t)

	_, err := svc.Submit(context.Background(), []byte(`{"formId":"f3","data":{}}`))
	require.NoError(t, err)
	svc.Wait()

	view, err := f.query().Query(context.Background(), "temp-f3")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, view.Status)
	assert.Contains(t, view.Error, "db down")
	assert.Zero(t, f.client.calls.Load())
	cases.AssertNotCalled(t, "CreateCase", mock.Anything, mock.Anything)
}
