// Package memory provides an in-memory persistence implementation used
// by tests and local development. It is safe for concurrent use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
)

// Persistence implements the persistence layer with in-process maps.
type Persistence struct {
	executions   *ExecutionRepository
	templates    *TemplateRepository
	integrations *IntegrationRepository
	outcomes     *OutcomeRepository
}

// NewPersistence creates an empty in-memory persistence backend.
func NewPersistence() *Persistence {
	return &Persistence{
		executions:   &ExecutionRepository{items: make(map[string]*models.Execution)},
		templates:    &TemplateRepository{items: make(map[string]*models.Template)},
		integrations: &IntegrationRepository{items: make(map[string]*models.Integration)},
		outcomes:     &OutcomeRepository{},
	}
}

func (p *Persistence) Executions() persistence.ExecutionRepository     { return p.executions }
func (p *Persistence) Templates() persistence.TemplateRepository       { return p.templates }
func (p *Persistence) Integrations() persistence.IntegrationRepository { return p.integrations }
func (p *Persistence) Outcomes() persistence.OutcomeRepository         { return p.outcomes }

func (p *Persistence) HealthCheck(ctx context.Context) error { return nil }
func (p *Persistence) Close(ctx context.Context) error       { return nil }

// ExecutionRepository stores executions in a map guarded by a mutex.
type ExecutionRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Execution
}

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *execution
	r.items[execution.ID] = &clone

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.items[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	clone := *execution

	return &clone, nil
}

func (r *ExecutionRepository) List(ctx context.Context, organizationID string, limit, offset int) ([]*models.Execution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.Execution, 0)

	for _, execution := range r.items {
		if execution.OrganizationID == organizationID {
			clone := *execution
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if offset >= len(matched) {
		return []*models.Execution{}, nil
	}

	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, nil
}

func (r *ExecutionRepository) TryMarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.items[id]
	if !ok {
		return false, persistence.NewExecutionError("TryMarkRunning", id, persistence.ErrExecutionNotFound)
	}

	if execution.Status != models.ExecutionStatusQueued {
		return false, nil
	}

	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &startedAt

	return true, nil
}

func (r *ExecutionRepository) Status(ctx context.Context, id string) (models.ExecutionStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	execution, ok := r.items[id]
	if !ok {
		return "", persistence.NewExecutionError("Status", id, persistence.ErrExecutionNotFound)
	}

	return execution.Status, nil
}

func (r *ExecutionRepository) Cancel(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	execution, ok := r.items[id]
	if !ok {
		return false, persistence.NewExecutionError("Cancel", id, persistence.ErrExecutionNotFound)
	}

	if execution.Status.IsTerminal() {
		return false, nil
	}

	execution.Status = models.ExecutionStatusCancelled

	return true, nil
}

func (r *ExecutionRepository) CheckpointCounters(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[execution.ID]
	if !ok {
		return persistence.NewExecutionError("CheckpointCounters", execution.ID, persistence.ErrExecutionNotFound)
	}

	stored.TotalCount = execution.TotalCount
	stored.ProcessedCount = execution.ProcessedCount
	stored.SuccessCount = execution.SuccessCount
	stored.FailureCount = execution.FailureCount

	return nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, execution *models.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.items[execution.ID]
	if !ok {
		return persistence.NewExecutionError("Finish", execution.ID, persistence.ErrExecutionNotFound)
	}

	stored.Status = execution.Status
	stored.TotalCount = execution.TotalCount
	stored.ProcessedCount = execution.ProcessedCount
	stored.SuccessCount = execution.SuccessCount
	stored.FailureCount = execution.FailureCount
	stored.FailureReason = execution.FailureReason
	stored.CompletedAt = execution.CompletedAt
	stored.DurationSec = execution.DurationSec

	return nil
}

// TemplateRepository stores templates in a map guarded by a mutex.
type TemplateRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Template
}

func (r *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *template
	r.items[template.ID] = &clone

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	template, ok := r.items[id]
	if !ok || template.DeletedAt != nil {
		return nil, persistence.ErrTemplateNotFound
	}

	clone := *template

	return &clone, nil
}

func (r *TemplateRepository) GetPublished(ctx context.Context, organizationID, logicalID string) (*models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.Template

	for _, template := range r.items {
		if template.OrganizationID != organizationID || template.LogicalID != logicalID {
			continue
		}

		if template.Status != models.TemplateStatusPublished || template.DeletedAt != nil {
			continue
		}

		if best == nil || template.Version > best.Version {
			best = template
		}
	}

	if best == nil {
		return nil, persistence.ErrPublishedTemplateNotFound
	}

	clone := *best

	return &clone, nil
}

func (r *TemplateRepository) LatestVersion(ctx context.Context, organizationID, logicalID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := 0

	for _, template := range r.items {
		if template.OrganizationID == organizationID && template.LogicalID == logicalID && template.Version > latest {
			latest = template.Version
		}
	}

	return latest, nil
}

func (r *TemplateRepository) List(ctx context.Context, organizationID string) ([]*models.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latest := make(map[string]*models.Template)

	for _, template := range r.items {
		if template.OrganizationID != organizationID || template.DeletedAt != nil {
			continue
		}

		current, ok := latest[template.LogicalID]
		if !ok || template.Version > current.Version {
			latest[template.LogicalID] = template
		}
	}

	templates := make([]*models.Template, 0, len(latest))

	for _, template := range latest {
		clone := *template
		templates = append(templates, &clone)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].LogicalID < templates[j].LogicalID
	})

	return templates, nil
}

func (r *TemplateRepository) Publish(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, ok := r.items[id]
	if !ok || template.DeletedAt != nil {
		return persistence.ErrTemplateNotFound
	}

	if template.Status == models.TemplateStatusPublished {
		return persistence.ErrTemplateImmutable
	}

	template.Status = models.TemplateStatusPublished
	template.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *TemplateRepository) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	template, ok := r.items[id]
	if !ok || template.DeletedAt != nil {
		return persistence.ErrTemplateNotFound
	}

	now := time.Now().UTC()
	template.DeletedAt = &now
	template.UpdatedAt = now

	return nil
}

// IntegrationRepository stores integrations in a map guarded by a mutex.
type IntegrationRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Integration
}

func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *integration
	r.items[integration.ID] = &clone

	return nil
}

func (r *IntegrationRepository) GetActive(ctx context.Context, id string) (*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integration, ok := r.items[id]
	if !ok || !integration.IsActive || integration.DeletedAt != nil {
		return nil, persistence.ErrIntegrationNotFound
	}

	clone := *integration

	return &clone, nil
}

func (r *IntegrationRepository) List(ctx context.Context, organizationID string) ([]*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	integrations := make([]*models.Integration, 0)

	for _, integration := range r.items {
		if integration.OrganizationID == organizationID && integration.DeletedAt == nil {
			clone := *integration
			integrations = append(integrations, &clone)
		}
	}

	sort.Slice(integrations, func(i, j int) bool {
		return integrations[i].CreatedAt.After(integrations[j].CreatedAt)
	})

	return integrations, nil
}

func (r *IntegrationRepository) Deactivate(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	integration, ok := r.items[id]
	if !ok || integration.DeletedAt != nil {
		return persistence.ErrIntegrationNotFound
	}

	now := time.Now().UTC()
	integration.IsActive = false
	integration.DeletedAt = &now

	return nil
}

// OutcomeRepository stores row outcomes in an append-only slice.
type OutcomeRepository struct {
	mu    sync.RWMutex
	items []*models.RowOutcome
}

func (r *OutcomeRepository) CreateBatch(ctx context.Context, outcomes []*models.RowOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, outcome := range outcomes {
		clone := *outcome
		r.items = append(r.items, &clone)
	}

	return nil
}

func (r *OutcomeRepository) ListByExecution(ctx context.Context, executionID string, limit, offset int) ([]*models.RowOutcome, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*models.RowOutcome, 0)

	for _, outcome := range r.items {
		if outcome.ExecutionID == executionID {
			clone := *outcome
			matched = append(matched, &clone)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)

	if offset >= total {
		return []*models.RowOutcome{}, total, nil
	}

	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}

	return matched, total, nil
}
