package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
)

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

const templateColumns = `
	id
  , logical_id
  , version
  , organization_id
  , dataset_id
  , name
  , description
  , body
  , variables
  , filter
  , status
  , created_by
  , created_at
  , updated_at
  , deleted_at
`

func (r *TemplateRepository) Create(ctx context.Context, template *models.Template) error {
	variablesJSON, err := json.Marshal(template.Variables)
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	var filterJSON []byte

	if template.Filter != nil {
		filterJSON, err = json.Marshal(template.Filter)
		if err != nil {
			return fmt.Errorf("failed to marshal filter: %w", err)
		}
	}

	query := `
		INSERT INTO templates (
			id, logical_id, version, organization_id, dataset_id, name,
			description, body, variables, filter, status, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = r.db.ExecContext(ctx, query,
		template.ID,
		template.LogicalID,
		template.Version,
		template.OrganizationID,
		nullString(template.DatasetID),
		template.Name,
		template.Description,
		template.Body,
		variablesJSON,
		filterJSON,
		template.Status,
		nullString(template.CreatedBy),
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	query := `SELECT ` + templateColumns + ` FROM templates WHERE id = $1 AND deleted_at IS NULL`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrTemplateNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) GetPublished(ctx context.Context, organizationID, logicalID string) (*models.Template, error) {
	query := `
		SELECT ` + templateColumns + `
		FROM templates
		WHERE organization_id = $1 AND logical_id = $2 AND status = $3 AND deleted_at IS NULL
		ORDER BY version DESC
		LIMIT 1
	`

	template, err := scanTemplate(r.db.QueryRowContext(ctx, query, organizationID, logicalID, models.TemplateStatusPublished))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.ErrPublishedTemplateNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get published template: %w", err)
	}

	return template, nil
}

func (r *TemplateRepository) LatestVersion(ctx context.Context, organizationID, logicalID string) (int, error) {
	query := `
		SELECT COALESCE(MAX(version), 0)
		FROM templates
		WHERE organization_id = $1 AND logical_id = $2
	`

	var version int

	err := r.db.QueryRowContext(ctx, query, organizationID, logicalID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest template version: %w", err)
	}

	return version, nil
}

func (r *TemplateRepository) List(ctx context.Context, organizationID string) ([]*models.Template, error) {
	query := `
		SELECT DISTINCT ON (logical_id) ` + templateColumns + `
		FROM templates
		WHERE organization_id = $1 AND deleted_at IS NULL
		ORDER BY logical_id, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.Template, 0)

	for rows.Next() {
		template, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

func (r *TemplateRepository) Publish(ctx context.Context, id string) error {
	query := `
		UPDATE templates
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query,
		models.TemplateStatusPublished, time.Now().UTC(), id, models.TemplateStatusDraft,
	)
	if err != nil {
		return fmt.Errorf("failed to publish template: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to publish template: %w", err)
	}

	if affected == 0 {
		// Either absent or already published. Distinguish for callers.
		_, err := r.GetByID(ctx, id)
		if err != nil {
			return err
		}

		return persistence.ErrTemplateImmutable
	}

	return nil
}

func (r *TemplateRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE templates
		SET deleted_at = $1, updated_at = $1
		WHERE id = $2 AND deleted_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	if affected == 0 {
		return persistence.ErrTemplateNotFound
	}

	return nil
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var (
		template      models.Template
		datasetID     sql.NullString
		variablesJSON []byte
		filterJSON    []byte
		createdBy     sql.NullString
		deletedAt     sql.NullTime
	)

	err := row.Scan(
		&template.ID,
		&template.LogicalID,
		&template.Version,
		&template.OrganizationID,
		&datasetID,
		&template.Name,
		&template.Description,
		&template.Body,
		&variablesJSON,
		&filterJSON,
		&template.Status,
		&createdBy,
		&template.CreatedAt,
		&template.UpdatedAt,
		&deletedAt,
	)
	if err != nil {
		return nil, err
	}

	template.DatasetID = datasetID.String
	template.CreatedBy = createdBy.String

	if deletedAt.Valid {
		template.DeletedAt = &deletedAt.Time
	}

	err = json.Unmarshal(variablesJSON, &template.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal variables: %w", err)
	}

	if len(filterJSON) > 0 {
		var filter models.FilterDefinition

		err = json.Unmarshal(filterJSON, &filter)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal filter: %w", err)
		}

		template.Filter = &filter
	}

	return &template, nil
}
