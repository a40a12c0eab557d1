package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8085", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.PrimaryTimeout)
	assert.Equal(t, 10*time.Second, cfg.SecondaryTimeout)
	assert.Equal(t, 30, cfg.DefaultLookbackDays)
	assert.Equal(t, "recompute", cfg.TotalsMode)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_FromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "PRIMARY_TIMEOUT=750ms\nSECONDARY_TIMEOUT=20s\nKAFKA_BROKERS=k1:9092,k2:9092\nBULK_WORKERS=3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		for _, k := range []string{"PRIMARY_TIMEOUT", "SECONDARY_TIMEOUT", "KAFKA_BROKERS", "BULK_WORKERS"} {
			os.Unsetenv(k)
		}
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 750*time.Millisecond, cfg.PrimaryTimeout)
	assert.Equal(t, 20*time.Second, cfg.SecondaryTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.BulkWorkers)
	assert.True(t, cfg.KafkaEnabled())
}

func TestValidate_RejectsBadValues(t *testing.T) {
	t.Setenv("PRIMARY_TIMEOUT", "0s")
	t.Setenv("STORE_MODE", "mongo")
	_, err := Load(filepath.Join(t.TempDir(), "none.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIMARY_TIMEOUT must be positive")
	assert.Contains(t, err.Error(), "STORE_MODE")
}

func TestDBConfig_DSN(t *testing.T) {
	c := DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
