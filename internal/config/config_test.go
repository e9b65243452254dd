package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("BATCH_SECRET", "s3cret")
	t.Setenv("GATEWAY_API_KEY", "key")
	t.Setenv("GATEWAY_API_KEY_SECRET_PATH", "")
	t.Setenv("COURIER_BASIS_POINTS", "")
	t.Setenv("MANAGER_BASIS_POINTS", "")
	t.Setenv("WEBHOOK_REQUIRE_SIGNATURE", "")
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Server.BatchSecret)
	assert.Equal(t, int64(8700), cfg.Consolidation.CourierBasisPoints)
	assert.Equal(t, int64(500), cfg.Consolidation.ManagerBasisPoints)
	assert.Equal(t, "BRL", cfg.Consolidation.Currency)
	assert.True(t, cfg.Gateway.RequireWebhookSignature)
}

func TestLoadFromEnv_RequiresBatchSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BATCH_SECRET", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATCH_SECRET")
}

func TestLoadFromEnv_RequiresDBPassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_PASSWORD", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PASSWORD")
}

func TestLoadFromEnv_RequiresGatewayCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GATEWAY_API_KEY", "")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GATEWAY_API_KEY")

	// a secret manager path satisfies the requirement without an inline key
	t.Setenv("GATEWAY_API_KEY_SECRET_PATH", "prod/gateway/api-key")
	_, err = LoadFromEnv()
	assert.NoError(t, err)
}

func TestLoadFromEnv_RejectsExcessiveSplit(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COURIER_BASIS_POINTS", "9800")
	t.Setenv("MANAGER_BASIS_POINTS", "500")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "100%")
}

func TestLoadDatabaseFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("DB_USER", "engine")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_NAME", "payments")
	t.Setenv("DB_SSL_MODE", "require")

	cfg := LoadDatabaseFromEnv()
	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 5433, cfg.Port)
	assert.Equal(t,
		"host=db.internal port=5433 user=engine password=pw dbname=payments sslmode=require",
		cfg.ConnectionString())
}
