// Package postgresql provides the PostgreSQL persistence implementation
// for executions, templates, integrations and row outcomes.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db              *sql.DB
	logger          *slog.Logger
	executionRepo   *ExecutionRepository
	templateRepo    *TemplateRepository
	integrationRepo *IntegrationRepository
	outcomeRepo     *OutcomeRepository
}

// NewPersistence connects, runs migrations and wires the repositories.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:              database,
		logger:          logger,
		executionRepo:   NewExecutionRepository(database, logger),
		templateRepo:    NewTemplateRepository(database, logger),
		integrationRepo: NewIntegrationRepository(database, logger),
		outcomeRepo:     NewOutcomeRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return p.templateRepo
}

func (p *Persistence) Integrations() persistence.IntegrationRepository {
	return p.integrationRepo
}

func (p *Persistence) Outcomes() persistence.OutcomeRepository {
	return p.outcomeRepo
}
