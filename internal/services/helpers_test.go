package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/internal/status"
	"intake-pipeline/backend/pkg/models"
)

// NoOpLogger for testing
type NoOpLogger struct{}

func (l *NoOpLogger) Debug(msg string, args ...any) {}
func (l *NoOpLogger) Info(msg string, args ...any)  {}
func (l *NoOpLogger) Warn(msg string, args ...any)  {}
func (l *NoOpLogger) Error(msg string, args ...any) {}

// fakeClient answers Normalize with fn and records every input it saw.
type fakeClient struct {
	fn    func(ctx context.Context, input models.PipelineInput) (*NormalizeResponse, error)
	calls atomic.Int32

	mu     sync.Mutex
	inputs []models.PipelineInput
}

func (c *fakeClient) Normalize(ctx context.Context, input models.PipelineInput) (*NormalizeResponse, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.inputs = append(c.inputs, input)
	c.mu.Unlock()
	return c.fn(ctx, input)
}

func (c *fakeClient) lastInput(t *testing.T) models.PipelineInput {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.inputs)
	return c.inputs[len(c.inputs)-1]
}

func succeeding() *fakeClient {
	return &fakeClient{fn: func(context.Context, models.PipelineInput) (*NormalizeResponse, error) {
		return &NormalizeResponse{
			Success: true,
			Phases:  2,
			Body:    []byte(`{"success":true,"phase1":{"ok":true},"phase2":{"docs":3}}`),
		}, nil
	}}
}

func failing(class, msg string) *fakeClient {
	return &fakeClient{fn: func(context.Context, models.PipelineInput) (*NormalizeResponse, error) {
		return nil, &InvocationError{Class: class, Message: msg}
	}}
}

// blocking holds every call until release is closed.
func blocking(release <-chan struct{}) *fakeClient {
	return &fakeClient{fn: func(ctx context.Context, _ models.PipelineInput) (*NormalizeResponse, error) {
		select {
		case <-release:
			return &NormalizeResponse{Success: true, Body: []byte(`{"success":true}`)}, nil
		case <-ctx.Done():
			return nil, &InvocationError{Class: ClassTimeout, Message: "gave up", Cause: ctx.Err()}
		}
	}}
}

// MockCaseStore satisfies repository.CaseStore
type MockCaseStore struct {
	mock.Mock
}

func (m *MockCaseStore) CreateCase(ctx context.Context, c *models.Case) error {
	args := m.Called(ctx, c)
	return args.Error(0)
}

func (m *MockCaseStore) GetCase(ctx context.Context, id string) (*models.Case, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Case), args.Error(1)
}

func (m *MockCaseStore) FindCaseIDByFormID(ctx context.Context, formID string) (string, bool, error) {
	args := m.Called(ctx, formID)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockCaseStore) UpdateDocumentTypes(ctx context.Context, id string, types []string) error {
	args := m.Called(ctx, id, types)
	return args.Error(0)
}

func (m *MockCaseStore) AppendRegeneration(ctx context.Context, id string, rec models.RegenerationRecord) error {
	args := m.Called(ctx, id, rec)
	return args.Error(0)
}

func (m *MockCaseStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// fixture wires the services over in-memory collaborators.
type fixture struct {
	store       *status.MemoryStore
	cases       repository.CaseStore
	submissions *repository.FileSubmissionStore
	client      *fakeClient
	invoker     *PipelineInvoker
	resolver    *IdentifierResolver
	catalog     *DocumentCatalog
}

func newFixture(t *testing.T, client *fakeClient, cases repository.CaseStore, cfg InvokerConfig) *fixture {
	t.Helper()
	if cases == nil {
		cases = repository.NewMemoryCaseStore()
	}
	subs, err := repository.NewFileSubmissionStore(t.TempDir())
	require.NoError(t, err)

	store := status.NewMemoryStore(time.Hour)
	logger := &NoOpLogger{}
	inv := NewPipelineInvoker(client, store, logger, cfg)
	t.Cleanup(inv.Wait)

	return &fixture{
		store:       store,
		cases:       cases,
		submissions: subs,
		client:      client,
		invoker:     inv,
		resolver:    NewIdentifierResolver(cases, logger),
		catalog:     NewDocumentCatalog(nil),
	}
}

func (f *fixture) query() *StatusQueryService {
	return NewStatusQueryService(f.resolver, f.store)
}

func (f *fixture) retry() *RetryCoordinator {
	return NewRetryCoordinator(f.resolver, f.store, f.invoker, f.cases, f.submissions, &NoOpLogger{})
}

func (f *fixture) regenerate() *RegenerationCoordinator {
	return NewRegenerationCoordinator(f.resolver, f.store, f.invoker, f.cases, f.submissions, f.catalog, &NoOpLogger{})
}

func (f *fixture) submission(t *testing.T) *SubmissionService {
	t.Helper()
	svc, err := NewSubmissionService(f.cases, f.submissions, f.invoker, f.catalog, &NoOpLogger{})
	require.NoError(t, err)
	t.Cleanup(svc.Wait)
	return svc
}
