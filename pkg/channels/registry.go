package channels

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/models"
)

// Factory builds a channel from an integration's decrypted context.
type Factory func(integration *models.Integration, vault *crypto.Vault, logger *slog.Logger) (Channel, error)

// Registry maps channel types to provider factories. Adding a provider
// means registering one factory; the execution engine never changes.
type Registry struct {
	logger    *slog.Logger
	vault     *crypto.Vault
	factories map[models.ChannelType]Factory
}

func NewRegistry(logger *slog.Logger, vault *crypto.Vault) *Registry {
	return &Registry{
		logger:    logger,
		vault:     vault,
		factories: make(map[models.ChannelType]Factory),
	}
}

func (r *Registry) Register(channelType models.ChannelType, factory Factory) {
	r.factories[channelType] = factory
}

// Create selects the provider for an integration. Called once per
// execution, before the row loop starts.
func (r *Registry) Create(integration *models.Integration) (Channel, error) {
	factory, ok := r.factories[integration.ChannelType]
	if !ok {
		return nil, fmt.Errorf("channel type %q not registered, available: %v", integration.ChannelType, r.Types())
	}

	return factory(integration, r.vault, r.logger.With("channel_type", integration.ChannelType))
}

// Types returns the registered channel types in sorted order.
func (r *Registry) Types() []models.ChannelType {
	types := make([]models.ChannelType, 0, len(r.factories))
	for channelType := range r.factories {
		types = append(types, channelType)
	}

	slices.Sort(types)

	return types
}

// NewDefaultRegistry registers the built-in providers.
func NewDefaultRegistry(logger *slog.Logger, vault *crypto.Vault) *Registry {
	registry := NewRegistry(logger, vault)
	registry.Register(models.ChannelTypeEmail, NewEmailChannel)
	registry.Register(models.ChannelTypeWhatsApp, NewWhatsAppChannel)

	return registry
}
