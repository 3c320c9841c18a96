package main

import (
	"context"
	"fmt"

	"github.com/taskforge/conductor/pkg/config"
	"github.com/taskforge/conductor/pkg/database"
)

// loadConfigAndDB performs the bootstrap every subcommand needs:
// configuration (with the same conductor.yaml + env var expansion
// rules everywhere) and a migrated database connection. Callers own
// the returned Client and must Close it.
func loadConfigAndDB(ctx context.Context) (*config.Config, *database.Client, error) {
	cfg, err := config.Initialize(ctx, configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load database config: %w", err)
	}

	client, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, client, nil
}
