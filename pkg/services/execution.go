package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/dataset"
	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/events"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/progress"
)

// Execution handles execution intake and progress reads. The actual row
// loop runs in the worker; this service only persists the queued record
// and hands it off over the bus.
type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	cache       *progress.Cache
}

// NewExecution creates a new execution service. The publisher and cache
// may be nil in tests.
func NewExecution(logger *slog.Logger, persistence persistence.Persistence, publisher eventbus.EventPublisher, cache *progress.Cache) *Execution {
	return &Execution{
		logger:      logger,
		persistence: persistence,
		publisher:   publisher,
		cache:       cache,
	}
}

// CreateExecutionRequest is the input for queueing a campaign run over
// an already uploaded dataset file.
type CreateExecutionRequest struct {
	OrganizationID    string
	TemplateLogicalID string
	IntegrationID     string
	RecipientColumn   string
	FilePath          string
	TriggeredBy       string
}

// Create persists a queued execution and publishes the handoff event.
// The call returns as soon as the record is durable; all row work
// happens in a worker.
func (s *Execution) Create(ctx context.Context, req CreateExecutionRequest) (*models.Execution, error) {
	if strings.TrimSpace(req.RecipientColumn) == "" {
		return nil, ErrRecipientColumnRequired
	}

	tpl, err := s.persistence.Templates().GetPublished(ctx, req.OrganizationID, req.TemplateLogicalID)
	if err != nil {
		if errors.Is(err, persistence.ErrPublishedTemplateNotFound) {
			return nil, ErrTemplateNotPublished
		}

		return nil, fmt.Errorf("failed to load published template: %w", err)
	}

	integration, err := s.persistence.Integrations().GetActive(ctx, req.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}

	execution := &models.Execution{
		ID:              uuid.New().String(),
		OrganizationID:  req.OrganizationID,
		TemplateID:      tpl.ID,
		IntegrationID:   integration.ID,
		ChannelType:     integration.ChannelType,
		RecipientColumn: models.NormalizeName(req.RecipientColumn),
		FilePath:        req.FilePath,
		Status:          models.ExecutionStatusQueued,
		TriggeredBy:     req.TriggeredBy,
		CreatedAt:       time.Now().UTC(),
	}

	err = s.persistence.Executions().Create(ctx, execution)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if s.publisher != nil {
		event := events.ExecutionQueued{
			BaseEvent:      events.NewBaseEvent(events.ExecutionQueuedEvent, execution.ID),
			OrganizationID: execution.OrganizationID,
		}

		err = s.publisher.Publish(ctx, execution.ID, event)
		if err != nil {
			// The record is durable; a worker can still pick it up by
			// other means. Surface the problem without failing intake.
			s.logger.ErrorContext(ctx, "failed to publish execution queued event",
				"execution_id", execution.ID, "error", err)
		}
	}

	return execution, nil
}

// ValidationReport is the outcome of the pre-run compatibility check.
type ValidationReport struct {
	Compatible  bool                 `json:"compatible"`
	RowCount    int                  `json:"row_count"`
	Schema      models.Schema        `json:"schema"`
	SampleRows  []models.Row         `json:"sample_rows"`
	Diagnostics []dataset.Diagnostic `json:"diagnostics"`
}

// Validate parses an uploaded dataset and cross-checks it against the
// published template without queueing anything. Every diagnostic is
// returned, not just the first.
func (s *Execution) Validate(ctx context.Context, organizationID, templateLogicalID, recipientColumn, filePath string) (*ValidationReport, error) {
	if strings.TrimSpace(recipientColumn) == "" {
		return nil, ErrRecipientColumnRequired
	}

	tpl, err := s.persistence.Templates().GetPublished(ctx, organizationID, templateLogicalID)
	if err != nil {
		if errors.Is(err, persistence.ErrPublishedTemplateNotFound) {
			return nil, ErrTemplateNotPublished
		}

		return nil, fmt.Errorf("failed to load published template: %w", err)
	}

	parsed, err := dataset.ParseFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	diagnostics := dataset.CheckCompatibility(tpl, parsed.Schema, models.NormalizeName(recipientColumn))

	return &ValidationReport{
		Compatible:  len(diagnostics) == 0,
		RowCount:    parsed.RowCount,
		Schema:      parsed.Schema,
		SampleRows:  parsed.SampleRows,
		Diagnostics: diagnostics,
	}, nil
}

// GetByID returns one execution.
func (s *Execution) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	return s.persistence.Executions().GetByID(ctx, id)
}

// List returns an organization's executions, newest first.
func (s *Execution) List(ctx context.Context, organizationID string, limit, offset int) ([]*models.Execution, error) {
	return s.persistence.Executions().List(ctx, organizationID, limit, offset)
}

// Progress returns the freshest snapshot for an execution: the cached
// one if a worker pushed it recently, otherwise derived from the stored
// record.
func (s *Execution) Progress(ctx context.Context, id string) (models.ProgressSnapshot, error) {
	if s.cache != nil {
		snapshot, err := s.cache.Load(ctx, id)
		if err == nil {
			return snapshot, nil
		}

		if !errors.Is(err, progress.ErrSnapshotNotFound) {
			s.logger.WarnContext(ctx, "failed to load cached snapshot", "execution_id", id, "error", err)
		}
	}

	execution, err := s.persistence.Executions().GetByID(ctx, id)
	if err != nil {
		return models.ProgressSnapshot{}, err
	}

	snapshot := execution.Snapshot()
	if execution.Status == models.ExecutionStatusFailed {
		snapshot.Error = execution.FailureReason
	}

	return snapshot, nil
}

// Cancel requests cooperative cancellation. The worker observes the
// status flip at its next row boundary.
func (s *Execution) Cancel(ctx context.Context, id string) error {
	flipped, err := s.persistence.Executions().Cancel(ctx, id)
	if err != nil {
		return err
	}

	if !flipped {
		return ErrAlreadyTerminal
	}

	if s.publisher != nil {
		event := events.ExecutionCancelled{
			BaseEvent: events.NewBaseEvent(events.ExecutionCancelledEvent, id),
		}

		err = s.publisher.Publish(ctx, id, event)
		if err != nil {
			s.logger.WarnContext(ctx, "failed to publish cancellation event", "execution_id", id, "error", err)
		}
	}

	return nil
}

// Outcomes returns the paginated per-row delivery log, newest first.
func (s *Execution) Outcomes(ctx context.Context, executionID string, limit, offset int) ([]*models.RowOutcome, int, error) {
	_, err := s.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return nil, 0, err
	}

	return s.persistence.Outcomes().ListByExecution(ctx, executionID, limit, offset)
}
