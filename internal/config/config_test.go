package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.AppPort)
	assert.Equal(t, time.Minute, cfg.Dispatch.Interval)
	assert.Equal(t, 60*time.Second, cfg.Verification.Cooldown)
	assert.Equal(t, 30*time.Minute, cfg.Verification.Validity)
	assert.Equal(t, 6, cfg.Verification.CodeDigits)
	assert.Equal(t, "email", cfg.Verification.Channel)
	assert.Equal(t, "reminders", cfg.DynamoTables.Reminders)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.SMTP.Timeout)
	assert.False(t, cfg.TrustProxyHeaders)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISPATCH_INTERVAL", "30s")
	t.Setenv("SEND_TIMEOUT", "2s")
	t.Setenv("VERIFICATION_CODE_DIGITS", "8")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Dispatch.Interval)
	assert.Equal(t, 2*time.Second, cfg.Dispatch.SendTimeout)
	assert.Equal(t, 8, cfg.Verification.CodeDigits)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"zero interval":   {"DISPATCH_INTERVAL", "0s"},
		"too few digits":  {"VERIFICATION_CODE_DIGITS", "3"},
		"unknown channel": {"VERIFICATION_CHANNEL", "pigeon"},
		"sms channel":     {"VERIFICATION_CHANNEL", "sms"},
		"no smtp timeout": {"SMTP_TIMEOUT", "0s"},
		"no workers":      {"DISPATCH_CONCURRENCY", "0"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.ErrorContains(t, err, kv[0])
		})
	}
}
