package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/persistence/memory"
	"github.com/casthq/caster/pkg/persistence/postgresql"
)

// NewPersistence creates the persistence backend from the database URL.
// An empty URL selects the in-memory backend for local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	if databaseURL == "" {
		logger.WarnContext(ctx, "no database URL configured, using in-memory persistence")

		return memory.NewPersistence()
	}

	backend, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	if err != nil {
		panic(fmt.Errorf("failed to initialize persistence: %w", err))
	}

	return backend
}
