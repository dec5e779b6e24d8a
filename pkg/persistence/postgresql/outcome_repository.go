package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/casthq/caster/pkg/models"
)

// OutcomeRepository handles per-row delivery outcome storage.
type OutcomeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewOutcomeRepository creates a new outcome repository.
func NewOutcomeRepository(db *sql.DB, logger *slog.Logger) *OutcomeRepository {
	return &OutcomeRepository{db: db, logger: logger}
}

const outcomeFieldCount = 12

func (r *OutcomeRepository) CreateBatch(ctx context.Context, outcomes []*models.RowOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	var (
		builder strings.Builder
		args    = make([]any, 0, len(outcomes)*outcomeFieldCount)
	)

	builder.WriteString(`
		INSERT INTO execution_logs (
			id, execution_id, channel_type, recipient_value,
			rendered_message, delivery_status, provider_message_id,
			provider_response, retry_count, is_retried, sent_at, created_at
		) VALUES `)

	for i, outcome := range outcomes {
		if i > 0 {
			builder.WriteString(", ")
		}

		builder.WriteString("(")

		for j := 0; j < outcomeFieldCount; j++ {
			if j > 0 {
				builder.WriteString(", ")
			}

			fmt.Fprintf(&builder, "$%d", i*outcomeFieldCount+j+1)
		}

		builder.WriteString(")")

		args = append(args,
			outcome.ID,
			outcome.ExecutionID,
			outcome.ChannelType,
			outcome.RecipientValue,
			nullString(outcome.RenderedMessage),
			outcome.DeliveryStatus,
			nullString(outcome.ProviderMessageID),
			nullString(outcome.ProviderResponse),
			outcome.RetryCount,
			outcome.IsRetried,
			outcome.SentAt,
			outcome.CreatedAt,
		)
	}

	_, err := r.db.ExecContext(ctx, builder.String(), args...)
	if err != nil {
		return fmt.Errorf("failed to insert outcome batch: %w", err)
	}

	return nil
}

func (r *OutcomeRepository) ListByExecution(ctx context.Context, executionID string, limit, offset int) ([]*models.RowOutcome, int, error) {
	var total int

	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM execution_logs WHERE execution_id = $1", executionID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count outcomes: %w", err)
	}

	query := `
		SELECT
			id
		  , execution_id
		  , channel_type
		  , recipient_value
		  , rendered_message
		  , delivery_status
		  , provider_message_id
		  , provider_response
		  , retry_count
		  , is_retried
		  , sent_at
		  , created_at
		FROM execution_logs
		WHERE execution_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, executionID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query outcomes: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	outcomes := make([]*models.RowOutcome, 0)

	for rows.Next() {
		var (
			outcome           models.RowOutcome
			renderedMessage   sql.NullString
			providerMessageID sql.NullString
			providerResponse  sql.NullString
			sentAt            sql.NullTime
		)

		err := rows.Scan(
			&outcome.ID,
			&outcome.ExecutionID,
			&outcome.ChannelType,
			&outcome.RecipientValue,
			&renderedMessage,
			&outcome.DeliveryStatus,
			&providerMessageID,
			&providerResponse,
			&outcome.RetryCount,
			&outcome.IsRetried,
			&sentAt,
			&outcome.CreatedAt,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan outcome: %w", err)
		}

		outcome.RenderedMessage = renderedMessage.String
		outcome.ProviderMessageID = providerMessageID.String
		outcome.ProviderResponse = providerResponse.String

		if sentAt.Valid {
			outcome.SentAt = &sentAt.Time
		}

		outcomes = append(outcomes, &outcome)
	}

	err = rows.Err()
	if err != nil {
		return nil, 0, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, total, nil
}
