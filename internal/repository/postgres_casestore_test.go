package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"intake-pipeline/backend/pkg/models"
)

func TestPostgresCaseStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	require.NoError(t, Migrate(ctx, pool))
	require.NoError(t, Migrate(ctx, pool), "migrate must be idempotent")

	store := NewPostgresCaseStore(pool)

	c := &models.Case{
		FormID:        "42",
		Input:         json.RawMessage(`{"plaintiff":"Ada","claims":[1,2]}`),
		DocumentTypes: []string{"summons", "complaint"},
	}

	t.Run("Create and Get", func(t *testing.T) {
		require.NoError(t, store.CreateCase(ctx, c))
		require.NotEmpty(t, c.ID)

		got, err := store.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "42", got.FormID)
		assert.JSONEq(t, string(c.Input), string(got.Input))
		assert.Equal(t, c.DocumentTypes, got.DocumentTypes)
		assert.Empty(t, got.RegenerationHistory)
	})

	t.Run("Resolve form to case", func(t *testing.T) {
		id, ok, err := store.FindCaseIDByFormID(ctx, "42")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, c.ID, id)

		_, ok, err = store.FindCaseIDByFormID(ctx, "99")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Update selection and append history", func(t *testing.T) {
		require.NoError(t, store.UpdateDocumentTypes(ctx, c.ID, []string{"answer"}))
		rec := models.RegenerationRecord{
			Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			DocumentTypes: []string{"answer"},
			Trigger:       "api",
		}
		require.NoError(t, store.AppendRegeneration(ctx, c.ID, rec))
		require.NoError(t, store.AppendRegeneration(ctx, c.ID, rec))

		got, err := store.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"answer"}, got.DocumentTypes)
		require.Len(t, got.RegenerationHistory, 2)
		assert.Equal(t, "api", got.RegenerationHistory[1].Trigger)
		assert.True(t, rec.Timestamp.Equal(got.RegenerationHistory[0].Timestamp))
	})

	t.Run("Missing case", func(t *testing.T) {
		_, err := store.GetCase(ctx, "nope")
		assert.ErrorIs(t, err, ErrCaseNotFound)
		assert.ErrorIs(t, store.UpdateDocumentTypes(ctx, "nope", nil), ErrCaseNotFound)
	})
}
