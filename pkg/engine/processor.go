package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/channels"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/ratelimit"
	"github.com/casthq/caster/pkg/template"
)

const (
	// maxRetries is the number of additional delivery attempts after the
	// first one fails.
	maxRetries = 2

	// maxBackoff caps the exponential wait between attempts.
	maxBackoff = 30 * time.Second
)

// processor drives the delivery attempt sequence for single rows. One
// processor is shared by all workers of a run; it holds no per-row state.
type processor struct {
	executionID     string
	channelType     models.ChannelType
	body            string
	recipientColumn string
	channel         channels.Channel
	limiter         *ratelimit.Limiter
	sleep           func(time.Duration)
}

// processRow renders and delivers one row, retrying failed attempts with
// exponential backoff. It always returns exactly one outcome and never
// an error: delivery problems are recorded in the outcome itself.
func (p *processor) processRow(ctx context.Context, row models.Row) *models.RowOutcome {
	outcome := &models.RowOutcome{
		ID:          uuid.New().String(),
		ExecutionID: p.executionID,
		ChannelType: p.channelType,
		CreatedAt:   time.Now().UTC(),
	}

	normalized := models.NormalizeRow(row)

	recipient := strings.TrimSpace(normalized[models.NormalizeName(p.recipientColumn)])
	outcome.RecipientValue = recipient

	// A missing recipient is decided before touching the limiter so it
	// never consumes a send slot.
	if recipient == "" {
		outcome.DeliveryStatus = models.DeliveryStatusFailed
		outcome.ProviderResponse = "recipient value is empty"

		return outcome
	}

	var lastResponse string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			p.sleep(backoff(attempt))
		}

		// Rendered fresh on every attempt, lenient: a variable missing
		// from the row becomes an empty string rather than a failure.
		message, err := template.Render(p.body, row, false)
		if err != nil {
			lastResponse = err.Error()
			continue
		}

		err = p.limiter.Wait(ctx)
		if err != nil {
			lastResponse = err.Error()

			break
		}

		result := p.channel.Send(ctx, recipient, message)
		if result.Success {
			now := time.Now().UTC()

			outcome.DeliveryStatus = models.DeliveryStatusDelivered
			outcome.RenderedMessage = message
			outcome.ProviderMessageID = result.ProviderMessageID
			outcome.ProviderResponse = result.ResponseMessage
			outcome.RetryCount = attempt
			outcome.IsRetried = attempt > 0
			outcome.SentAt = &now

			return outcome
		}

		lastResponse = result.ResponseMessage
		outcome.RetryCount = attempt
	}

	outcome.DeliveryStatus = models.DeliveryStatusFailed
	outcome.IsRetried = outcome.RetryCount > 0
	outcome.ProviderResponse = lastResponse

	return outcome
}

// backoff returns the wait before retry number n, doubling per retry.
func backoff(n int) time.Duration {
	wait := time.Duration(1<<uint(n)) * time.Second
	if wait > maxBackoff {
		return maxBackoff
	}

	return wait
}
