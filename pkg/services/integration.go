package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/models"
	"github.com/casthq/caster/pkg/persistence"
)

// Integration manages channel credential bundles. Credentials are
// encrypted before they reach the persistence layer and are never
// returned by any read path.
type Integration struct {
	persistence persistence.Persistence
	vault       *crypto.Vault
}

// NewIntegration creates a new integration service.
func NewIntegration(persistence persistence.Persistence, vault *crypto.Vault) *Integration {
	return &Integration{persistence: persistence, vault: vault}
}

// CreateIntegrationRequest is the input for registering a channel
// credential bundle.
type CreateIntegrationRequest struct {
	OrganizationID     string
	ChannelType        models.ChannelType
	ProviderName       string
	Credentials        map[string]string
	SenderIdentifier   string
	RateLimitPerMinute int
}

// Create encrypts the credential bundle and stores the integration.
func (s *Integration) Create(ctx context.Context, req CreateIntegrationRequest) (*models.Integration, error) {
	encrypted, err := s.vault.Encrypt(req.Credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	integration := &models.Integration{
		ID:                   uuid.New().String(),
		OrganizationID:       req.OrganizationID,
		ChannelType:          req.ChannelType,
		ProviderName:         req.ProviderName,
		EncryptedCredentials: encrypted,
		SenderIdentifier:     req.SenderIdentifier,
		RateLimitPerMinute:   req.RateLimitPerMinute,
		IsActive:             true,
		CreatedAt:            time.Now().UTC(),
	}

	err = s.persistence.Integrations().Create(ctx, integration)
	if err != nil {
		return nil, fmt.Errorf("failed to create integration: %w", err)
	}

	return integration, nil
}

// List returns an organization's integrations.
func (s *Integration) List(ctx context.Context, organizationID string) ([]*models.Integration, error) {
	return s.persistence.Integrations().List(ctx, organizationID)
}

// Deactivate retires an integration. Running executions keep the
// channel they already resolved.
func (s *Integration) Deactivate(ctx context.Context, id string) error {
	return s.persistence.Integrations().Deactivate(ctx, id)
}
