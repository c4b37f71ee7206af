package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"intake-pipeline/backend/internal/config"
	"intake-pipeline/backend/internal/logging"
	"intake-pipeline/backend/internal/repository"
	"intake-pipeline/backend/internal/services"
	"intake-pipeline/backend/pkg/models"
)

// seed applies the schema and loads a few demo cases so retry and
// regeneration can be exercised against a fresh database.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	subs, err := repository.NewFileSubmissionStore(cfg.Fallback.Dir)
	if err != nil {
		log.Fatalf("Failed to open submission store: %v", err)
	}

	var cases repository.CaseStore = repository.NewMemoryCaseStore()
	if cfg.DB.Enable {
		pool, err := pgxpool.New(ctx, cfg.DSN())
		if err != nil {
			log.Fatalf("Failed to connect to DB: %v", err)
		}
		defer pool.Close()

		if err := repository.Migrate(ctx, pool); err != nil {
			log.Fatalf("Failed to apply schema: %v", err)
		}
		cases = repository.NewPostgresCaseStore(pool)
	} else {
		logger.Warn("db.enable is false, only the fallback submission store is seeded")
	}

	demo := []struct {
		FormID string
		Data   map[string]any
		Types  []string
	}{
		{"demo-1001", map[string]any{"plaintiff": "Acme Corp", "defendant": "Jane Roe", "amount": 1250}, []string{"summons", "complaint"}},
		{"demo-1002", map[string]any{"plaintiff": "Globex", "defendant": "John Doe", "amount": 980}, models.DefaultDocumentTypes},
		{"demo-1003", map[string]any{"plaintiff": "Initech", "defendant": "Bill L.", "amount": 400}, []string{"answer"}},
	}

	for _, d := range demo {
		data, err := json.Marshal(d.Data)
		if err != nil {
			log.Fatalf("Failed to encode %s: %v", d.FormID, err)
		}

		sub := &models.FormSubmission{FormID: d.FormID, Data: data, DocumentTypes: d.Types, SubmittedAt: time.Now().UTC()}
		if err := subs.SaveSubmission(ctx, sub); err != nil {
			log.Fatalf("Failed to save submission %s: %v", d.FormID, err)
		}

		if !cfg.DB.Enable {
			logger.Info("Seeded submission", "form_id", d.FormID, "job_id", services.PlaceholderID(d.FormID))
			continue
		}

		caseID, exists, err := cases.FindCaseIDByFormID(ctx, d.FormID)
		if err != nil {
			log.Fatalf("Failed to look up %s: %v", d.FormID, err)
		}
		if exists {
			logger.Info("Skipping existing case", "form_id", d.FormID, "case_id", caseID)
		} else {
			c := &models.Case{ID: uuid.New().String(), FormID: d.FormID, Input: data, DocumentTypes: d.Types}
			if err := cases.CreateCase(ctx, c); err != nil {
				log.Fatalf("Failed to create case %s: %v", d.FormID, err)
			}
			caseID = c.ID
			logger.Info("Seeded case", "form_id", d.FormID, "case_id", caseID)
		}
		if err := subs.LinkCase(ctx, d.FormID, caseID); err != nil {
			log.Printf("Failed to link %s: %v", d.FormID, err)
		}
	}
	logger.Info("Seeding complete!")
}
