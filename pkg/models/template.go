package models

import "time"

// TemplateStatus represents the lifecycle state of a campaign template.
type TemplateStatus string

const (
	TemplateStatusDraft     TemplateStatus = "draft"     // Editable, not executable
	TemplateStatusPublished TemplateStatus = "published" // Immutable, executable
)

// Template represents one version of a campaign template. All versions of
// one template share LogicalID; a published version is never mutated in
// place, updates create a new version instead.
type Template struct {
	ID             string            `json:"id"`
	LogicalID      string            `json:"logical_id"      validate:"required"`
	Version        int               `json:"version"         validate:"gte=1"`
	OrganizationID string            `json:"organization_id" validate:"required"`
	DatasetID      string            `json:"dataset_id,omitempty"`
	Name           string            `json:"name"            validate:"required,min=3"`
	Description    string            `json:"description,omitempty"`
	Body           string            `json:"body"            validate:"required"`
	Variables      []string          `json:"variables"`
	Filter         *FilterDefinition `json:"filter,omitempty"`
	Status         TemplateStatus    `json:"status"`
	CreatedBy      string            `json:"created_by,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
}
