package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL": "postgres://localhost/prodflow",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Development())
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 30*time.Second, cfg.OrderLockTTL)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "strict", cfg.LotSequenceStrategy)
	assert.False(t, cfg.IdempotencyEnabled)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"APP_ENV":               "production",
		"DATABASE_URL":          "postgres://db/prodflow",
		"KAFKA_BROKERS":         " k1:9092, ,k2:9092 ",
		"OUTBOX_POLL_INTERVAL":  "250ms",
		"IDEMPOTENCY_ENABLED":   "true",
		"LOT_SEQUENCE_STRATEGY": "CACHED",
	}))
	require.NoError(t, err)

	assert.False(t, cfg.Development())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.OutboxPollInterval)
	assert.True(t, cfg.IdempotencyEnabled)
	assert.Equal(t, "cached", cfg.LotSequenceStrategy)
}

func TestFromLookup_Invalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
	}{
		{"missing database url", map[string]string{}},
		{"bad duration", map[string]string{"DATABASE_URL": "x", "ORDER_LOCK_TTL": "soon"}},
		{"bad strategy", map[string]string{"DATABASE_URL": "x", "LOT_SEQUENCE_STRATEGY": "random"}},
		{"min above max", map[string]string{"DATABASE_URL": "x", "DB_MAX_CONNS": "2", "DB_MIN_CONNS": "5"}},
		{"bad port", map[string]string{"DATABASE_URL": "x", "APP_PORT": "http"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromLookup(lookupFrom(tt.vars))
			assert.Error(t, err)
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PRODFLOW_TEST_ONLY=1\n"), 0o600))

	t.Setenv("DATABASE_URL", "postgres://env/prodflow")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/prodflow", cfg.DatabaseURL)
	assert.Equal(t, "1", os.Getenv("PRODFLOW_TEST_ONLY"))
	os.Unsetenv("PRODFLOW_TEST_ONLY")
}

func TestLoad_MissingFileIsIgnored(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/prodflow")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
