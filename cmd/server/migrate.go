package main

import (
	"context"
	"errors"

	"intake-pipeline/backend/internal/repository"
)

func runMigrate(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.DB.Enable {
		return errors.New("db.enable is false; nothing to migrate")
	}

	pool, err := initDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("Schema applied", "database", cfg.DB.Name)
	return nil
}
