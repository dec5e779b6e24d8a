package crypto

import (
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) string {
	t.Helper()

	var key fernet.Key

	require.NoError(t, key.Generate())

	return key.Encode()
}

func TestNewVault_RejectsBadKeys(t *testing.T) {
	_, err := NewVault("")
	assert.Error(t, err)

	_, err = NewVault("not-a-key")
	assert.Error(t, err)
}

func TestVault_RoundTrip(t *testing.T) {
	vault, err := NewVault(testKey(t))
	require.NoError(t, err)

	credentials := map[string]string{
		"smtp_host": "smtp.example.com",
		"smtp_user": "mailer",
		"smtp_pass": "secret",
	}

	token, err := vault.Encrypt(credentials)
	require.NoError(t, err)
	assert.NotContains(t, token, "secret")

	decrypted, err := vault.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, credentials, decrypted)
}

func TestVault_DecryptWithWrongKey(t *testing.T) {
	vault, err := NewVault(testKey(t))
	require.NoError(t, err)

	token, err := vault.Encrypt(map[string]string{"k": "v"})
	require.NoError(t, err)

	other, err := NewVault(testKey(t))
	require.NoError(t, err)

	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
