package channels

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/fernet/fernet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casthq/caster/pkg/crypto"
	"github.com/casthq/caster/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testVault(t *testing.T) *crypto.Vault {
	t.Helper()

	var key fernet.Key

	require.NoError(t, key.Generate())

	vault, err := crypto.NewVault(key.Encode())
	require.NoError(t, err)

	return vault
}

func encrypted(t *testing.T, vault *crypto.Vault, credentials map[string]string) string {
	t.Helper()

	token, err := vault.Encrypt(credentials)
	require.NoError(t, err)

	return token
}

func TestRegistry_UnknownChannelType(t *testing.T) {
	registry := NewDefaultRegistry(testLogger(), testVault(t))

	_, err := registry.Create(&models.Integration{ChannelType: "pigeon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
	assert.Contains(t, err.Error(), "available: [email whatsapp]")
}

func TestRegistry_DefaultProviders(t *testing.T) {
	registry := NewDefaultRegistry(testLogger(), testVault(t))
	assert.Equal(t, []models.ChannelType{models.ChannelTypeEmail, models.ChannelTypeWhatsApp}, registry.Types())
}

func TestNewEmailChannel_MissingHost(t *testing.T) {
	vault := testVault(t)

	integration := &models.Integration{
		ChannelType:          models.ChannelTypeEmail,
		EncryptedCredentials: encrypted(t, vault, map[string]string{"smtp_user": "u"}),
	}

	_, err := NewEmailChannel(integration, vault, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp_host")
}

func TestNewEmailChannel_BadCredentialToken(t *testing.T) {
	vault := testVault(t)

	integration := &models.Integration{
		ChannelType:          models.ChannelTypeEmail,
		EncryptedCredentials: "garbage",
	}

	_, err := NewEmailChannel(integration, vault, testLogger())
	assert.Error(t, err)
}

func TestWhatsApp_RejectsNonE164WithoutNetworkCall(t *testing.T) {
	vault := testVault(t)

	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	channel := newTestWhatsAppChannel(t, vault, server.URL)

	outcome := channel.Send(context.Background(), "14155550100", "hello")
	assert.False(t, outcome.Success)
	assert.Contains(t, outcome.ResponseMessage, "E.164")
	assert.False(t, called)
}

func TestWhatsApp_SuccessfulSend(t *testing.T) {
	vault := testVault(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "whatsapp:+14155550100", r.PostForm.Get("To"))
		assert.Equal(t, "whatsapp:+14155550199", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))

		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"sid": "SM1", "status": "queued"})
	}))
	defer server.Close()

	channel := newTestWhatsAppChannel(t, vault, server.URL)

	outcome := channel.Send(context.Background(), "+14155550100", "hello")
	assert.True(t, outcome.Success)
	assert.Equal(t, "SM1", outcome.ProviderMessageID)
	assert.Equal(t, "queued", outcome.ResponseMessage)
}

func TestWhatsApp_ProviderErrorMappedToOutcome(t *testing.T) {
	vault := testVault(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Authentication Error"})
	}))
	defer server.Close()

	channel := newTestWhatsAppChannel(t, vault, server.URL)

	outcome := channel.Send(context.Background(), "+14155550100", "hello")
	assert.False(t, outcome.Success)
	assert.Equal(t, "Authentication Error", outcome.ResponseMessage)
}

func TestWhatsApp_NetworkErrorMappedToOutcome(t *testing.T) {
	vault := testVault(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // immediately closed: connections will be refused

	channel := newTestWhatsAppChannel(t, vault, server.URL)

	outcome := channel.Send(context.Background(), "+14155550100", "hello")
	assert.False(t, outcome.Success)
	assert.NotEmpty(t, outcome.ResponseMessage)
}

func newTestWhatsAppChannel(t *testing.T, vault *crypto.Vault, baseURL string) Channel {
	t.Helper()

	integration := &models.Integration{
		ChannelType:      models.ChannelTypeWhatsApp,
		SenderIdentifier: "+14155550199",
		EncryptedCredentials: encrypted(t, vault, map[string]string{
			"account_sid": "AC123",
			"auth_token":  "token",
			"base_url":    baseURL,
		}),
	}

	channel, err := NewWhatsAppChannel(integration, vault, testLogger())
	require.NoError(t, err)

	return channel
}
