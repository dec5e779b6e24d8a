package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
)

// ExecutionRepository handles execution-related database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , organization_id
  , template_id
  , integration_id
  , channel_type
  , recipient_column
  , file_path
  , status
  , total_count
  , processed_count
  , success_count
  , failure_count
  , failure_reason
  , triggered_by
  , started_at
  , completed_at
  , execution_duration_seconds
  , created_at
`

func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	query := `
		INSERT INTO executions (
			id, organization_id, template_id, integration_id, channel_type,
			recipient_column, file_path, status, total_count, processed_count,
			success_count, failure_count, failure_reason, triggered_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.ID,
		execution.OrganizationID,
		execution.TemplateID,
		nullString(execution.IntegrationID),
		execution.ChannelType,
		execution.RecipientColumn,
		execution.FilePath,
		execution.Status,
		execution.TotalCount,
		execution.ProcessedCount,
		execution.SuccessCount,
		execution.FailureCount,
		nullString(execution.FailureReason),
		nullString(execution.TriggeredBy),
		execution.CreatedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE id = $1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

func (r *ExecutionRepository) List(ctx context.Context, organizationID string, limit, offset int) ([]*models.Execution, error) {
	query := `
		SELECT ` + executionColumns + `
		FROM executions
		WHERE organization_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

func (r *ExecutionRepository) TryMarkRunning(ctx context.Context, id string, startedAt time.Time) (bool, error) {
	query := `
		UPDATE executions
		SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.ExecutionStatusRunning, startedAt, id, models.ExecutionStatusQueued)
	if err != nil {
		return false, persistence.NewExecutionError("TryMarkRunning", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("TryMarkRunning", id, err)
	}

	return affected == 1, nil
}

func (r *ExecutionRepository) Status(ctx context.Context, id string) (models.ExecutionStatus, error) {
	var status models.ExecutionStatus

	err := r.db.QueryRowContext(ctx, "SELECT status FROM executions WHERE id = $1", id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", persistence.NewExecutionError("Status", id, persistence.ErrExecutionNotFound)
	}

	if err != nil {
		return "", persistence.NewExecutionError("Status", id, err)
	}

	return status, nil
}

func (r *ExecutionRepository) Cancel(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE executions
		SET status = $1
		WHERE id = $2 AND status IN ($3, $4)
	`

	result, err := r.db.ExecContext(ctx, query,
		models.ExecutionStatusCancelled, id,
		models.ExecutionStatusQueued, models.ExecutionStatusRunning,
	)
	if err != nil {
		return false, persistence.NewExecutionError("Cancel", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("Cancel", id, err)
	}

	return affected == 1, nil
}

func (r *ExecutionRepository) CheckpointCounters(ctx context.Context, execution *models.Execution) error {
	query := `
		UPDATE executions
		SET total_count = $1
		  , processed_count = $2
		  , success_count = $3
		  , failure_count = $4
		WHERE id = $5
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.TotalCount,
		execution.ProcessedCount,
		execution.SuccessCount,
		execution.FailureCount,
		execution.ID,
	)
	if err != nil {
		return persistence.NewExecutionError("CheckpointCounters", execution.ID, err)
	}

	return nil
}

func (r *ExecutionRepository) Finish(ctx context.Context, execution *models.Execution) error {
	query := `
		UPDATE executions
		SET status = $1
		  , total_count = $2
		  , processed_count = $3
		  , success_count = $4
		  , failure_count = $5
		  , failure_reason = $6
		  , completed_at = $7
		  , execution_duration_seconds = $8
		WHERE id = $9
	`

	_, err := r.db.ExecContext(ctx, query,
		execution.Status,
		execution.TotalCount,
		execution.ProcessedCount,
		execution.SuccessCount,
		execution.FailureCount,
		nullString(execution.FailureReason),
		execution.CompletedAt,
		execution.DurationSec,
		execution.ID,
	)
	if err != nil {
		return persistence.NewExecutionError("Finish", execution.ID, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.Execution, error) {
	var (
		execution     models.Execution
		integrationID sql.NullString
		failureReason sql.NullString
		triggeredBy   sql.NullString
		startedAt     sql.NullTime
		completedAt   sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.OrganizationID,
		&execution.TemplateID,
		&integrationID,
		&execution.ChannelType,
		&execution.RecipientColumn,
		&execution.FilePath,
		&execution.Status,
		&execution.TotalCount,
		&execution.ProcessedCount,
		&execution.SuccessCount,
		&execution.FailureCount,
		&failureReason,
		&triggeredBy,
		&startedAt,
		&completedAt,
		&execution.DurationSec,
		&execution.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.IntegrationID = integrationID.String
	execution.FailureReason = failureReason.String
	execution.TriggeredBy = triggeredBy.String

	if startedAt.Valid {
		execution.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
