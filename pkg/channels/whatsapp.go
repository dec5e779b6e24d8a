package channels

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/models"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

const whatsappSendTimeout = 10 * time.Second

// WhatsAppChannel delivers messages through the Twilio WhatsApp API.
type WhatsAppChannel struct {
	accountSID string
	authToken  string
	sender     string
	baseURL    string
	client     *http.Client
	logger     *slog.Logger
}

// NewWhatsAppChannel builds the provider from an integration's
// credential bundle: account_sid and auth_token. An optional base_url
// credential overrides the API host for testing.
func NewWhatsAppChannel(integration *models.Integration, vault *crypto.Vault, logger *slog.Logger) (Channel, error) {
	credentials, err := vault.Decrypt(integration.EncryptedCredentials)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt whatsapp credentials: %w", err)
	}

	accountSID := credentials["account_sid"]
	authToken := credentials["auth_token"]

	if accountSID == "" || authToken == "" {
		return nil, errors.New("whatsapp credentials missing account_sid or auth_token")
	}

	baseURL := credentials["base_url"]
	if baseURL == "" {
		baseURL = defaultTwilioBaseURL
	}

	return &WhatsAppChannel{
		accountSID: accountSID,
		authToken:  authToken,
		sender:     integration.SenderIdentifier,
		baseURL:    baseURL,
		client:     &http.Client{Timeout: whatsappSendTimeout},
		logger:     logger,
	}, nil
}

type twilioMessageResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Send posts one message to the Twilio REST API. Recipients must already
// be in E.164 form; anything else fails fast without a network call.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient, message string) Outcome {
	if !strings.HasPrefix(recipient, "+") {
		return Outcome{
			Success:         false,
			ResponseMessage: "recipient must be E.164 format (+14155550100)",
		}
	}

	form := url.Values{}
	form.Set("From", "whatsapp:"+c.sender)
	form.Set("To", "whatsapp:"+recipient)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.baseURL, c.accountSID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return failure(err)
	}

	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return failure(err)
	}
	defer resp.Body.Close()

	var parsed twilioMessageResponse

	err = json.NewDecoder(resp.Body).Decode(&parsed)
	if err != nil {
		return failure(fmt.Errorf("failed to decode provider response: %w", err))
	}

	if resp.StatusCode >= 400 {
		reason := parsed.Message
		if reason == "" {
			reason = resp.Status
		}

		return Outcome{Success: false, ResponseMessage: reason}
	}

	return Outcome{
		Success:           true,
		ProviderMessageID: parsed.SID,
		ResponseMessage:   parsed.Status,
	}
}
