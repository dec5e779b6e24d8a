package models

import "time"

// ChannelType identifies a delivery channel variant.
type ChannelType string

const (
	ChannelTypeEmail    ChannelType = "email"
	ChannelTypeWhatsApp ChannelType = "whatsapp"
)

// Integration is a per-tenant credential bundle plus sender identity and
// rate limit for one channel. Credentials stay encrypted at rest; the
// crypto collaborator decrypts them at send time.
type Integration struct {
	ID             string      `json:"id"`
	OrganizationID string      `json:"organization_id" validate:"required"`
	ChannelType    ChannelType `json:"channel_type"    validate:"required,oneof=email whatsapp"`
	ProviderName   string      `json:"provider_name"   validate:"required"`

	EncryptedCredentials string `json:"-"`
	SenderIdentifier     string `json:"sender_identifier"`

	RateLimitPerMinute int  `json:"rate_limit_per_minute"`
	IsActive           bool `json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}
