package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
currency: gbp
log:
  level: debug
  format: text
rate_limit:
  rps: 5
  burst: 10
`), 0o644))

	t.Setenv("LEDGER_CURRENCY", "eur")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("DEV_SEED", "yes")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 5.0, cfg.RateLimit.RPS)
	assert.Equal(t, 3, cfg.RateLimit.Burst)
	assert.True(t, cfg.DevSeed)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	t.Setenv("RATE_LIMIT_RPS", "fast")
	_, err = Load("")
	assert.Error(t, err)
}

func TestLoadRejectsBadCurrency(t *testing.T) {
	t.Setenv("LEDGER_CURRENCY", "dollars")
	_, err := Load("")
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("err"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("verbose"))
}
