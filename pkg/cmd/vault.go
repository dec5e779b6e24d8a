package cmd

import (
	"fmt"

	"github.com/casthq/caster/pkg/crypto"
)

// NewVault creates the credential vault from the configured master key.
func NewVault(encryptionKey string) *crypto.Vault {
	vault, err := crypto.NewVault(encryptionKey)
	if err != nil {
		panic(fmt.Errorf("failed to initialize credential vault: %w", err))
	}

	return vault
}
