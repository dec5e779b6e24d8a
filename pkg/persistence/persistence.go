// Package persistence provides the data storage abstraction for
// executions, templates, integrations and row outcomes.
package persistence

import (
	"context"
	"time"

	"github.com/casthq/caster/pkg/models"
)

// ExecutionRepository stores campaign executions. Counter updates are
// only ever issued by the single worker driving the run.
type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	List(ctx context.Context, organizationID string, limit, offset int) ([]*models.Execution, error)

	// TryMarkRunning transitions queued → running and stamps the start
	// time. It reports false when the execution was not in queued state,
	// which guards against double pickup.
	TryMarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error)

	// Status re-reads only the current status; the worker polls this at
	// row boundaries to observe external cancellation.
	Status(ctx context.Context, id string) (models.ExecutionStatus, error)

	// Cancel flips a queued or running execution to cancelled. It
	// reports false when the execution was already terminal.
	Cancel(ctx context.Context, id string) (bool, error)

	// CheckpointCounters persists the current counter values.
	CheckpointCounters(ctx context.Context, execution *models.Execution) error

	// Finish writes the terminal status, counters, timestamps, duration
	// and failure reason in one update.
	Finish(ctx context.Context, execution *models.Execution) error
}

// TemplateRepository stores versioned campaign templates.
type TemplateRepository interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	GetPublished(ctx context.Context, organizationID, logicalID string) (*models.Template, error)
	LatestVersion(ctx context.Context, organizationID, logicalID string) (int, error)
	List(ctx context.Context, organizationID string) ([]*models.Template, error)
	Publish(ctx context.Context, id string) error
	SoftDelete(ctx context.Context, id string) error
}

// IntegrationRepository stores channel integrations.
type IntegrationRepository interface {
	Create(ctx context.Context, integration *models.Integration) error
	GetActive(ctx context.Context, id string) (*models.Integration, error)
	List(ctx context.Context, organizationID string) ([]*models.Integration, error)
	Deactivate(ctx context.Context, id string) error
}

// OutcomeRepository stores per-row delivery outcomes. Writes arrive in
// batches to bound write amplification; reads are paginated newest-first.
type OutcomeRepository interface {
	CreateBatch(ctx context.Context, outcomes []*models.RowOutcome) error
	ListByExecution(ctx context.Context, executionID string, limit, offset int) ([]*models.RowOutcome, int, error)
}

// Persistence bundles the repositories behind one backend.
type Persistence interface {
	Executions() ExecutionRepository
	Templates() TemplateRepository
	Integrations() IntegrationRepository
	Outcomes() OutcomeRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
