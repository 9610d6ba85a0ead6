package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAPIEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8080")
	t.Setenv("DB_DSN", "postgres://localhost/paperbroker")
	t.Setenv("JWT_ISSUER", "paperbroker")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_TTL", "24h")
	t.Setenv("INTERNAL_API_TOKEN", "tok")
}

func TestLoad(t *testing.T) {
	setAPIEnv(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, "*", cfg.WebSocketOrigin)
	assert.Equal(t, 3*time.Second, cfg.OrderExecutionDelay)
	assert.Equal(t, 750*time.Millisecond, cfg.OrderWorker.Interval)
	assert.Equal(t, 50, cfg.OrderWorker.BatchLimit)
	assert.Equal(t, 3*time.Second, cfg.PnLWorker.Interval)
	assert.Equal(t, 500, cfg.PnLWorker.BatchLimit)
	assert.Equal(t, "0.05", cfg.PnLWorker.UpdateThreshold)
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DB_DSN", "")
	t.Setenv("JWT_ISSUER", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_TTL", "")
	t.Setenv("INTERNAL_API_TOKEN", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP_ADDR")
	assert.Contains(t, err.Error(), "DB_DSN")
	assert.Contains(t, err.Error(), "JWT_TTL")
	assert.Contains(t, err.Error(), "INTERNAL_API_TOKEN")
}

func TestWorkerTunablesFromEnv(t *testing.T) {
	t.Setenv("ORDER_WORKER_INTERVAL_MS", "250")
	t.Setenv("ORDER_WORKER_BATCH_LIMIT", "10")
	w, err := LoadOrderWorker()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, w.Interval)
	assert.Equal(t, 10, w.BatchLimit)

	t.Setenv("POSITION_PNL_WORKER_INTERVAL_MS", "1000")
	t.Setenv("POSITION_PNL_UPDATE_THRESHOLD", "0.25")
	p, err := LoadPnLWorker()
	require.NoError(t, err)
	assert.Equal(t, time.Second, p.Interval)
	assert.Equal(t, "0.25", p.UpdateThreshold)
}

func TestWorkerTunablesRejectGarbage(t *testing.T) {
	t.Setenv("ORDER_WORKER_INTERVAL_MS", "soon")
	_, err := LoadOrderWorker()
	assert.Error(t, err)

	t.Setenv("ORDER_WORKER_INTERVAL_MS", "-5")
	_, err = LoadOrderWorker()
	assert.Error(t, err)
}
