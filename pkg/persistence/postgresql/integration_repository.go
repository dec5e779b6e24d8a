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

// IntegrationRepository handles channel integration storage.
type IntegrationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewIntegrationRepository creates a new integration repository.
func NewIntegrationRepository(db *sql.DB, logger *slog.Logger) *IntegrationRepository {
	return &IntegrationRepository{db: db, logger: logger}
}

const integrationColumns = `
	id
  , organization_id
  , channel_type
  , provider_name
  , encrypted_credentials
  , sender_identifier
  , rate_limit_per_minute
  , is_active
  , created_at
  , deleted_at
`

func (r *IntegrationRepository) Create(ctx context.Context, integration *models.Integration) error {
	query := `
		INSERT INTO integrations (
			id, organization_id, channel_type, provider_name,
			encrypted_credentials, sender_identifier, rate_limit_per_minute,
			is_active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		integration.ID,
		integration.OrganizationID,
		integration.ChannelType,
		integration.ProviderName,
		integration.EncryptedCredentials,
		integration.SenderIdentifier,
		integration.RateLimitPerMinute,
		integration.IsActive,
		integration.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create integration: %w", err)
	}

	return nil
}

func (r *IntegrationRepository) GetActive(ctx context.Context, id string) (*models.Integration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM integrations
		WHERE id = $1 AND is_active = TRUE AND deleted_at IS NULL
	`

	integration, err := scanIntegration(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrIntegrationNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}

	return integration, nil
}

func (r *IntegrationRepository) List(ctx context.Context, organizationID string) ([]*models.Integration, error) {
	query := `
		SELECT ` + integrationColumns + `
		FROM integrations
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query integrations: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	integrations := make([]*models.Integration, 0)

	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}

		integrations = append(integrations, integration)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating integrations: %w", err)
	}

	return integrations, nil
}

func (r *IntegrationRepository) Deactivate(ctx context.Context, id string) error {
	query := `
		UPDATE integrations
		SET is_active = FALSE, deleted_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to deactivate integration: %w", err)
	}

	if affected == 0 {
		return persistence.ErrIntegrationNotFound
	}

	return nil
}

func scanIntegration(row rowScanner) (*models.Integration, error) {
	var (
		integration models.Integration
		deletedAt   sql.NullTime
	)

	err := row.Scan(
		&integration.ID,
		&integration.OrganizationID,
		&integration.ChannelType,
		&integration.ProviderName,
		&integration.EncryptedCredentials,
		&integration.SenderIdentifier,
		&integration.RateLimitPerMinute,
		&integration.IsActive,
		&integration.CreatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	if deletedAt.Valid {
		integration.DeletedAt = &deletedAt.Time
	}

	return &integration, nil
}
