// Package engine drives campaign executions end to end: pre-flight
// loading and validation, the parallel row loop with cooperative
// cancellation, counter checkpointing and progress relay.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/casthq/caster/pkg/channels"
	"github.com/casthq/caster/pkg/dataset"
	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/events"
	"github.com/casthq/caster/pkg/filter"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/progress"
	"github.com/casthq/caster/pkg/ratelimit"
)

const (
	// rowParallelism is the worker budget for one run. The rate limiter
	// remains the actual throughput gate.
	rowParallelism = 10

	// maxRowsAllowed caps the working set of one execution.
	maxRowsAllowed = 2000

	// logBatchSize is the outcome write batch size.
	logBatchSize = 50

	// checkpointInterval is the row stride between counter checkpoints
	// and progress broadcasts.
	checkpointInterval = 10
)

// Runner executes queued campaign runs. One Runner serves many
// executions; each Run call owns its execution exclusively after the
// queued → running transition succeeds.
type Runner struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *channels.Registry
	broadcaster *progress.Broadcaster
	cache       *progress.Cache
	publisher   eventbus.EventPublisher
	workerID    string
	sleep       func(time.Duration)
}

// NewRunner creates an execution runner. The cache and publisher may be
// nil; progress is then only visible to in-process observers.
func NewRunner(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *channels.Registry,
	broadcaster *progress.Broadcaster,
	cache *progress.Cache,
	publisher eventbus.EventPublisher,
	workerID string,
) *Runner {
	return &Runner{
		logger:      logger,
		persistence: persistence,
		registry:    registry,
		broadcaster: broadcaster,
		cache:       cache,
		publisher:   publisher,
		workerID:    workerID,
		sleep:       time.Sleep,
	}
}

// Run drives one execution to a terminal state. A run that fails before
// any row is processed ends as failed with a reason; a run that starts
// its row loop ends completed or cancelled. The uploaded source file is
// removed on every exit path.
func (r *Runner) Run(ctx context.Context, executionID string) error {
	logger := r.logger.With("execution_id", executionID, "worker_id", r.workerID)

	execution, err := r.persistence.Executions().GetByID(ctx, executionID)
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	startedAt := time.Now().UTC()

	picked, err := r.persistence.Executions().TryMarkRunning(ctx, executionID, startedAt)
	if err != nil {
		return fmt.Errorf("failed to mark execution running: %w", err)
	}

	if !picked {
		logger.InfoContext(ctx, "execution not in queued state, skipping pickup")

		return nil
	}

	execution.Status = models.ExecutionStatusRunning
	execution.StartedAt = &startedAt

	defer r.cleanupFile(ctx, logger, execution.FilePath)

	r.publish(ctx, executionID, events.ExecutionStarted{
		BaseEvent: r.baseEvent(events.ExecutionStartedEvent, executionID),
	})

	logger.InfoContext(ctx, "execution started")

	tpl, workingSet, err := r.preflight(ctx, execution)
	if err != nil {
		return r.fail(ctx, logger, execution, err)
	}

	execution.TotalCount = len(workingSet)

	err = r.persistence.Executions().CheckpointCounters(ctx, execution)
	if err != nil {
		return r.fail(ctx, logger, execution, fmt.Errorf("failed to checkpoint counters: %w", err))
	}

	if len(workingSet) == 0 {
		logger.InfoContext(ctx, "no rows left after filtering, completing immediately")

		return r.finish(ctx, logger, execution, models.ExecutionStatusCompleted)
	}

	proc, err := r.buildProcessor(ctx, execution, tpl)
	if err != nil {
		return r.fail(ctx, logger, execution, err)
	}

	cancelled, err := r.runRows(ctx, logger, execution, proc, workingSet)
	if err != nil {
		return r.fail(ctx, logger, execution, err)
	}

	status := models.ExecutionStatusCompleted
	if cancelled {
		status = models.ExecutionStatusCancelled
	}

	return r.finish(ctx, logger, execution, status)
}

// preflight loads the template, validates compatibility against the
// freshly inferred schema and applies the template's filter. The
// returned working set is what the row loop will deliver to.
func (r *Runner) preflight(ctx context.Context, execution *models.Execution) (*models.Template, []models.Row, error) {
	tpl, err := r.persistence.Templates().GetByID(ctx, execution.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load template: %w", err)
	}

	if tpl.Status != models.TemplateStatusPublished {
		return nil, nil, fmt.Errorf("template %s is not published", tpl.ID)
	}

	parsed, err := dataset.ParseFile(execution.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	if parsed.RowCount > maxRowsAllowed {
		return nil, nil, fmt.Errorf("dataset has %d rows, the maximum allowed is %d", parsed.RowCount, maxRowsAllowed)
	}

	diagnostics := dataset.CheckCompatibility(tpl, parsed.Schema, execution.RecipientColumn)
	if len(diagnostics) > 0 {
		return nil, nil, fmt.Errorf("template is not compatible with the dataset: %s", joinDiagnostics(diagnostics))
	}

	workingSet, err := filter.Apply(parsed.Rows, tpl.Filter, parsed.Schema)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to apply filter: %w", err)
	}

	return tpl, workingSet, nil
}

// buildProcessor resolves the integration into a channel and a rate
// limiter scoped to this run.
func (r *Runner) buildProcessor(ctx context.Context, execution *models.Execution, tpl *models.Template) (*processor, error) {
	integration, err := r.persistence.Integrations().GetActive(ctx, execution.IntegrationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load integration: %w", err)
	}

	if integration.ChannelType != execution.ChannelType {
		return nil, fmt.Errorf("integration channel %s does not match execution channel %s",
			integration.ChannelType, execution.ChannelType)
	}

	channel, err := r.registry.Create(integration)
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	return &processor{
		executionID:     execution.ID,
		channelType:     execution.ChannelType,
		body:            tpl.Body,
		recipientColumn: execution.RecipientColumn,
		channel:         channel,
		limiter:         ratelimit.New(integration.RateLimitPerMinute),
		sleep:           r.sleep,
	}, nil
}

// runRows delivers the working set through a bounded worker pool. The
// collector loop below is the only writer of the execution counters, so
// checkpoints always see a consistent state. It reports whether the run
// was cancelled externally.
func (r *Runner) runRows(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.Execution,
	proc *processor,
	workingSet []models.Row,
) (bool, error) {
	runCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	jobs := make(chan models.Row)
	results := make(chan *models.RowOutcome)

	go func() {
		defer close(jobs)

		for _, row := range workingSet {
			select {
			case jobs <- row:
			case <-runCtx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup

	workers := rowParallelism
	if len(workingSet) < workers {
		workers = len(workingSet)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for row := range jobs {
				results <- proc.processRow(runCtx, row)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		batch     = make([]*models.RowOutcome, 0, logBatchSize)
		cancelled bool
	)

	for outcome := range results {
		execution.ProcessedCount++

		if outcome.DeliveryStatus == models.DeliveryStatusDelivered {
			execution.SuccessCount++
		} else {
			execution.FailureCount++
		}

		batch = append(batch, outcome)

		if len(batch) >= logBatchSize {
			err := r.flushOutcomes(ctx, logger, batch)
			if err != nil {
				stopWorkers()
				drain(results)

				return false, err
			}

			batch = batch[:0]
		}

		if execution.ProcessedCount%checkpointInterval == 0 {
			err := r.persistence.Executions().CheckpointCounters(ctx, execution)
			if err != nil {
				logger.ErrorContext(ctx, "failed to checkpoint counters", "error", err)
			}

			r.relay(ctx, execution)
		}

		// Cancellation is cooperative: observed at row boundaries, rows
		// already in flight still finish and are counted.
		if !cancelled {
			status, err := r.persistence.Executions().Status(ctx, execution.ID)
			if err != nil {
				logger.ErrorContext(ctx, "failed to poll execution status", "error", err)
			} else if status == models.ExecutionStatusCancelled {
				logger.InfoContext(ctx, "cancellation observed, stopping at row boundary")

				cancelled = true

				stopWorkers()
			}
		}
	}

	err := r.flushOutcomes(ctx, logger, batch)
	if err != nil {
		return false, err
	}

	return cancelled, nil
}

func (r *Runner) flushOutcomes(ctx context.Context, logger *slog.Logger, batch []*models.RowOutcome) error {
	if len(batch) == 0 {
		return nil
	}

	err := r.persistence.Outcomes().CreateBatch(ctx, batch)
	if err != nil {
		return fmt.Errorf("failed to persist outcome batch: %w", err)
	}

	logger.DebugContext(ctx, "flushed outcome batch", "size", len(batch))

	return nil
}

// finish writes the terminal state and relays the final snapshot.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, execution *models.Execution, status models.ExecutionStatus) error {
	execution.Status = status
	r.stampCompletion(execution)

	err := r.persistence.Executions().Finish(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to finish execution: %w", err)
	}

	r.relay(ctx, execution)

	snapshot := execution.Snapshot()

	switch status {
	case models.ExecutionStatusCancelled:
		r.publish(ctx, execution.ID, events.ExecutionCancelled{
			BaseEvent: r.baseEvent(events.ExecutionCancelledEvent, execution.ID),
			Snapshot:  snapshot,
		})
	default:
		r.publish(ctx, execution.ID, events.ExecutionCompleted{
			BaseEvent: r.baseEvent(events.ExecutionCompletedEvent, execution.ID),
			Snapshot:  snapshot,
		})
	}

	logger.InfoContext(ctx, "execution finished",
		"status", status,
		"processed", execution.ProcessedCount,
		"success", execution.SuccessCount,
		"failed", execution.FailureCount,
		"duration_seconds", execution.DurationSec,
	)

	return nil
}

// fail marks the execution failed with the cause as the recorded reason.
// The original error is returned so the caller's logs carry it too.
func (r *Runner) fail(ctx context.Context, logger *slog.Logger, execution *models.Execution, cause error) error {
	execution.Status = models.ExecutionStatusFailed
	execution.FailureReason = cause.Error()
	r.stampCompletion(execution)

	err := r.persistence.Executions().Finish(ctx, execution)
	if err != nil {
		logger.ErrorContext(ctx, "failed to persist failed execution", "error", err)
	}

	r.relay(ctx, execution)

	r.publish(ctx, execution.ID, events.ExecutionFailed{
		BaseEvent: r.baseEvent(events.ExecutionFailedEvent, execution.ID),
		Reason:    execution.FailureReason,
	})

	logger.ErrorContext(ctx, "execution failed", "reason", execution.FailureReason)

	return cause
}

func (r *Runner) stampCompletion(execution *models.Execution) {
	now := time.Now().UTC()
	execution.CompletedAt = &now

	if execution.StartedAt != nil {
		execution.DurationSec = int(now.Sub(*execution.StartedAt).Seconds())
	}
}

// relay pushes the current snapshot to in-process observers, the cache
// and the bus. Each leg is best effort.
func (r *Runner) relay(ctx context.Context, execution *models.Execution) {
	snapshot := execution.Snapshot()

	if execution.Status == models.ExecutionStatusFailed {
		snapshot.Error = execution.FailureReason
	}

	r.broadcaster.Broadcast(execution.ID, snapshot)

	if r.cache != nil {
		err := r.cache.Store(ctx, execution.ID, snapshot)
		if err != nil {
			r.logger.WarnContext(ctx, "failed to cache progress snapshot",
				"execution_id", execution.ID, "error", err)
		}
	}

	r.publish(ctx, execution.ID, events.ExecutionProgress{
		BaseEvent: r.baseEvent(events.ExecutionProgressEvent, execution.ID),
		Snapshot:  snapshot,
	})
}

func (r *Runner) publish(ctx context.Context, executionID string, event eventbus.Event) {
	if r.publisher == nil {
		return
	}

	err := r.publisher.Publish(ctx, executionID, event)
	if err != nil {
		r.logger.WarnContext(ctx, "failed to publish event",
			"execution_id", executionID, "event_type", event.GetType(), "error", err)
	}
}

func (r *Runner) baseEvent(eventType events.EventType, executionID string) events.BaseEvent {
	base := events.NewBaseEvent(eventType, executionID)
	base.WorkerID = r.workerID

	return base
}

// cleanupFile removes the uploaded source file. Failures are logged and
// otherwise ignored: the execution outcome must not depend on it.
func (r *Runner) cleanupFile(ctx context.Context, logger *slog.Logger, path string) {
	if path == "" {
		return
	}

	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		logger.WarnContext(ctx, "failed to remove dataset file", "path", path, "error", err)
	}
}

func joinDiagnostics(diagnostics []dataset.Diagnostic) string {
	messages := make([]string, 0, len(diagnostics))

	for _, diagnostic := range diagnostics {
		messages = append(messages, diagnostic.Message)
	}

	return strings.Join(messages, "; ")
}

func drain(results <-chan *models.RowOutcome) {
	for range results {
	}
}
