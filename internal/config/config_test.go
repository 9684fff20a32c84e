package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MOCK_SERVICES", "true")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load("api")
	require.NoError(t, err)
	assert.Equal(t, "api", cfg.RunMode)
	assert.True(t, cfg.MockServices)
	assert.Equal(t, 10*time.Second, cfg.PaymentTimeout)
	assert.Equal(t, time.Hour, cfg.CheckoutSessionTTL)
	assert.Equal(t, "@every 5m", cfg.SweepCron)
	assert.Equal(t, 4*time.Minute, cfg.SweepLeaseTTL)
	assert.False(t, cfg.AllowTestPackages)
	assert.True(t, cfg.NotifyOwners)
	assert.Equal(t, 587, cfg.SmtpPort)
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("MONGO_URI", "")
	t.Setenv("JWT_SECRET", "x")

	_, err := Load("all")
	assert.ErrorContains(t, err, "MONGO_URI")
}

func TestLoad_PaymentURLRequiredOutsideMockMode(t *testing.T) {
	setRequired(t)
	t.Setenv("MOCK_SERVICES", "false")
	t.Setenv("PAYMENT_API_URL", "")

	_, err := Load("all")
	assert.ErrorContains(t, err, "PAYMENT_API_URL")
}

func TestLoad_InvalidNumbers(t *testing.T) {
	setRequired(t)
	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "soon")

	_, err := Load("all")
	assert.ErrorContains(t, err, "PAYMENT_TIMEOUT_SECONDS")

	t.Setenv("PAYMENT_TIMEOUT_SECONDS", "0")
	_, err = Load("all")
	assert.ErrorContains(t, err, "must be positive")
}
