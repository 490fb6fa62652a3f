package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.RunAddr)
	assert.Equal(t, "http://localhost:8080", cfg.ShortURLBase)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "Authentication", cfg.AuthCookieName)
	assert.Equal(t, "shrturl_session", cfg.SessionCookieName)
	assert.Equal(t, 32, cfg.CSRFTokenLength)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":7000")
	t.Setenv("BASE_URL", "http://envonly.com")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SESSION_COOKIE_NAME", "sid")

	cfg, err := New(WithDisableFlagsParsing(true))
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.RunAddr)
	assert.Equal(t, "http://envonly.com", cfg.ShortURLBase)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sid", cfg.SessionCookieName)
}

func TestConfigRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "chatty")

	_, err := New(WithDisableFlagsParsing(true))
	require.Error(t, err)
}

func TestConfigRejectsNonBase64Secret(t *testing.T) {
	t.Setenv("AUTH_COOKIE_SIGNING_SECRET_KEY", "!!!not-base64!!!")

	_, err := New(WithDisableFlagsParsing(true))
	require.Error(t, err)
}
