package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/filter"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
	"github.com/casthq/caster/pkg/template"
)

// Template manages the versioned template lifecycle. A save always
// creates a new version row: published versions are never mutated.
type Template struct {
	persistence persistence.Persistence
}

// NewTemplate creates a new template service.
func NewTemplate(persistence persistence.Persistence) *Template {
	return &Template{persistence: persistence}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// SaveTemplateRequest is the input for creating a template or a new
// version of an existing one. Filter carries the raw JSON document so
// both the structural and the semantic check run here. DatasetColumns,
// when present, is the schema of the dataset the filter will run
// against; the filter's column and type references are checked against
// it at save time.
type SaveTemplateRequest struct {
	OrganizationID string
	LogicalID      string
	DatasetID      string
	Name           string
	Description    string
	Body           string
	Filter         json.RawMessage
	DatasetColumns models.Schema
	CreatedBy      string
}

// Save creates the next version of a template as a draft. The variable
// list is always derived from the body, never taken from the caller.
func (s *Template) Save(ctx context.Context, req SaveTemplateRequest) (*models.Template, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, ErrTemplateNameRequired
	}

	if strings.TrimSpace(req.Body) == "" {
		return nil, ErrTemplateBodyRequired
	}

	variables, err := template.ExtractVariables(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to extract template variables: %w", err)
	}

	definition, err := s.bindFilter(req.Filter, req.DatasetColumns)
	if err != nil {
		return nil, err
	}

	logicalID := req.LogicalID
	if logicalID == "" {
		logicalID = uuid.New().String()
	}

	latest, err := s.persistence.Templates().LatestVersion(ctx, req.OrganizationID, logicalID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template version: %w", err)
	}

	now := time.Now().UTC()

	tpl := &models.Template{
		ID:             uuid.New().String(),
		LogicalID:      logicalID,
		Version:        latest + 1,
		OrganizationID: req.OrganizationID,
		DatasetID:      req.DatasetID,
		Name:           req.Name,
		Description:    req.Description,
		Body:           req.Body,
		Variables:      variables,
		Filter:         definition,
		Status:         models.TemplateStatusDraft,
		CreatedBy:      req.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.persistence.Templates().Create(ctx, tpl)
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return tpl, nil
}

// bindFilter validates the raw filter document structurally, then
// semantically against the bound dataset schema when one is known.
func (s *Template) bindFilter(raw json.RawMessage, schema models.Schema) (*models.FilterDefinition, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	err := filter.ValidateDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, err.Error())
	}

	var definition models.FilterDefinition

	err = json.Unmarshal(raw, &definition)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, err.Error())
	}

	if len(schema) > 0 {
		problems := filter.Validate(&definition, schema)
		if len(problems) > 0 {
			messages := make([]string, 0, len(problems))
			for _, problem := range problems {
				messages = append(messages, problem.Error())
			}

			return nil, fmt.Errorf("%w: %s", ErrInvalidFilter, strings.Join(messages, "; "))
		}
	}

	return &definition, nil
}

// Publish makes a draft version immutable and executable.
func (s *Template) Publish(ctx context.Context, id string) (*models.Template, error) {
	err := s.persistence.Templates().Publish(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.persistence.Templates().GetByID(ctx, id)
}

// GetByID returns one template version.
func (s *Template) GetByID(ctx context.Context, id string) (*models.Template, error) {
	return s.persistence.Templates().GetByID(ctx, id)
}

// GetPublished returns the newest published version of a logical
// template.
func (s *Template) GetPublished(ctx context.Context, organizationID, logicalID string) (*models.Template, error) {
	return s.persistence.Templates().GetPublished(ctx, organizationID, logicalID)
}

// List returns the newest version of every logical template in the
// organization.
func (s *Template) List(ctx context.Context, organizationID string) ([]*models.Template, error) {
	return s.persistence.Templates().List(ctx, organizationID)
}

// Delete soft deletes one template version.
func (s *Template) Delete(ctx context.Context, id string) error {
	return s.persistence.Templates().SoftDelete(ctx, id)
}
