// Package main provides the Caster execution worker.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/casthq/caster/pkg/channels"
	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/engine"
	"github.com/casthq/caster/pkg/eventbus"
	"github.com/casthq/caster/pkg/events"
	"github.com/casthq/caster/pkg/otelhelper"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/progress"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Worker consumes execution handoff events and drives each execution
// through the engine. The queued → running transition in the store is
// the pickup lock, so running several workers is safe.
type Worker struct {
	id       string
	logger   *slog.Logger
	eventBus eventbus.EventBus
	runner   *engine.Runner
	tracer   trace.Tracer
}

func NewWorker(
	id string,
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	vault *crypto.Vault,
	cache *progress.Cache,
) *Worker {
	runner := engine.NewRunner(
		logger,
		persistence,
		channels.NewDefaultRegistry(logger, vault),
		progress.NewBroadcaster(logger),
		cache,
		eventBus,
		id,
	)

	return &Worker{
		id:       id,
		logger:   logger,
		eventBus: eventBus,
		runner:   runner,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker")

	tracer, err := otelhelper.NewTracer(ctx, "caster-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to initialize tracer, continuing without tracing", "error", err)

		tracer = noop.NewTracerProvider().Tracer("caster-worker")
	}

	w.tracer = tracer

	w.eventBus.Handle(events.ExecutionQueuedEvent, w.handleExecutionQueued)

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *Worker) handleExecutionQueued(ctx context.Context, event any) error {
	queuedEvent, ok := event.(*events.ExecutionQueued)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionQueued")

		return nil
	}

	logger := w.logger.With(
		"execution_id", queuedEvent.ExecutionID,
		"organization_id", queuedEvent.OrganizationID,
		"event_id", queuedEvent.ID,
	)
	logger.InfoContext(ctx, "Processing execution queued event")

	spanCtx, span := otelhelper.StartSpan(ctx, w.tracer, "worker.execution run",
		attribute.String(otelhelper.ExecutionIDKey, queuedEvent.ExecutionID),
		attribute.String(otelhelper.EventIDKey, queuedEvent.ID),
		attribute.String(otelhelper.WorkerIDKey, w.id),
	)
	defer span.End()

	err := w.runner.Run(spanCtx, queuedEvent.ExecutionID)
	if err != nil {
		otelhelper.SetError(span, err)
		// The runner already wrote the terminal state and published the
		// failure event. Returning nil keeps the message acked so the
		// failed run is not redelivered forever.
		logger.ErrorContext(ctx, "Execution run failed", "error", err)
	}

	return nil
}
