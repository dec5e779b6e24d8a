// Package crypto handles encryption of channel credential bundles at
// rest. Bundles are JSON documents sealed as fernet tokens under a
// single master key.
package crypto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fernet/fernet-go"
)

// ErrInvalidToken is returned when an encrypted bundle cannot be
// authenticated with the configured key.
var ErrInvalidToken = errors.New("invalid or corrupted encrypted credentials")

// Vault seals and opens credential bundles with one master key.
type Vault struct {
	key *fernet.Key
}

// NewVault parses the base64 master key, typically sourced from the
// ENCRYPTION_KEY environment variable.
func NewVault(masterKey string) (*Vault, error) {
	if masterKey == "" {
		return nil, errors.New("encryption key is not set")
	}

	key, err := fernet.DecodeKey(masterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key format: %w", err)
	}

	return &Vault{key: key}, nil
}

// Encrypt seals a credential map into a fernet token.
func (v *Vault) Encrypt(credentials map[string]string) (string, error) {
	payload, err := json.Marshal(credentials)
	if err != nil {
		return "", fmt.Errorf("failed to marshal credentials: %w", err)
	}

	token, err := fernet.EncryptAndSign(payload, v.key)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	return string(token), nil
}

// Decrypt opens a fernet token back into the credential map. Tokens do
// not expire; revocation happens by rotating the integration.
func (v *Vault) Decrypt(token string) (map[string]string, error) {
	payload := fernet.VerifyAndDecrypt([]byte(token), 0, []*fernet.Key{v.key})
	if payload == nil {
		return nil, ErrInvalidToken
	}

	var credentials map[string]string

	err := json.Unmarshal(payload, &credentials)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal credentials: %w", err)
	}

	return credentials, nil
}
