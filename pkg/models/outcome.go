package models

import "time"

// DeliveryStatus is the final disposition of one row.
type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// RowOutcome is the persisted result of the delivery attempt sequence for
// one recipient in one execution. Exactly one is written per working-set
// row; it is immutable once written.
type RowOutcome struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id"`
	ChannelType ChannelType `json:"channel_type"`

	RecipientValue  string         `json:"recipient_value"`
	RenderedMessage string         `json:"rendered_message,omitempty"` // kept only on success
	DeliveryStatus  DeliveryStatus `json:"delivery_status"`

	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ProviderResponse  string `json:"provider_response,omitempty"`

	RetryCount int  `json:"retry_count"`
	IsRetried  bool `json:"is_retried"`

	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
