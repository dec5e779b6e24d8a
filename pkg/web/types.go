// Package web provides the HTTP API for templates, channel integrations
// and campaign executions.
package web

import (
	"encoding/json"

	"github.com/casthq/caster/pkg/models"
)

// SaveTemplateRequest is the body for creating a template or a new
// version of one. Variables are never accepted from the client, they
// are derived from the body on save.
type SaveTemplateRequest struct {
	OrganizationID string          `json:"organization_id" validate:"required"`
	LogicalID      string          `json:"logical_id,omitempty"`
	DatasetID      string          `json:"dataset_id,omitempty"`
	Name           string          `json:"name"            validate:"required,min=3"`
	Description    string          `json:"description,omitempty"`
	Body           string          `json:"body"            validate:"required"`
	Filter         json.RawMessage `json:"filter,omitempty"`
	DatasetColumns models.Schema   `json:"dataset_columns,omitempty"`
	CreatedBy      string          `json:"created_by,omitempty"`
}

// CreateIntegrationRequest is the body for registering a channel
// credential bundle.
type CreateIntegrationRequest struct {
	OrganizationID     string             `json:"organization_id"       validate:"required"`
	ChannelType        models.ChannelType `json:"channel_type"          validate:"required,oneof=email whatsapp"`
	ProviderName       string             `json:"provider_name"         validate:"required"`
	Credentials        map[string]string  `json:"credentials"           validate:"required"`
	SenderIdentifier   string             `json:"sender_identifier,omitempty"`
	RateLimitPerMinute int                `json:"rate_limit_per_minute" validate:"gte=0"`
}

// OutcomeListResponse is the paginated per-row delivery log.
type OutcomeListResponse struct {
	Outcomes   []*models.RowOutcome `json:"outcomes"`
	TotalCount int                  `json:"total_count"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}
