// Package channels implements the delivery providers a campaign can send
// through. Each provider performs one network delivery attempt per Send
// call; retry policy lives with the caller.
package channels

import "context"

// Outcome is the uniform result of one delivery attempt. Provider and
// network errors never escape a channel: they are mapped into a failed
// outcome with the error text in ResponseMessage.
type Outcome struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ResponseMessage   string `json:"response_message"`
}

// Channel is the send capability of one configured integration.
type Channel interface {
	Send(ctx context.Context, recipient, message string) Outcome
}

// failure builds a failed outcome from an error.
func failure(err error) Outcome {
	return Outcome{Success: false, ResponseMessage: err.Error()}
}
