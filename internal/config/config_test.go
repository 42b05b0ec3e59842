package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEEPTREE_API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "8090", cfg.Port)
	require.Equal(t, "memory", cfg.StoreDriver)
	require.Equal(t, 4, cfg.WorkerCount)
	require.Equal(t, 100, cfg.MaxQueueSize)
	require.EqualValues(t, 52428800, cfg.MaxUploadBytes)
	require.Equal(t, time.Hour, cfg.JobTTL)
	require.True(t, cfg.PDFFallbackPdftotext)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DEEPTREE_API_KEY", "secret")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/trees.db")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("WORKER_COUNT", "2")
	t.Setenv("PDF_FALLBACK_PDFTOTEXT", "false")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, 30*time.Minute, cfg.SessionTTL)
	require.Equal(t, 2, cfg.WorkerCount)
	require.False(t, cfg.PDFFallbackPdftotext)
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformed(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Config{
		APIKey:         "k",
		StoreDriver:    "memory",
		WorkerCount:    1,
		MaxQueueSize:   1,
		MaxUploadBytes: 1,
		JobTTL:         time.Minute,
	}
	require.NoError(t, base.Validate())

	tests := map[string]func(*Config){
		"missing api key": func(c *Config) { c.APIKey = "" },
		"unknown driver":  func(c *Config) { c.StoreDriver = "postgres" },
		"sqlite no path":  func(c *Config) { c.StoreDriver = "sqlite"; c.SQLitePath = "" },
		"zero workers":    func(c *Config) { c.WorkerCount = 0 },
		"zero queue":      func(c *Config) { c.MaxQueueSize = 0 },
		"zero upload":     func(c *Config) { c.MaxUploadBytes = 0 },
		"zero job ttl":    func(c *Config) { c.JobTTL = 0 },
		"negative ttl":    func(c *Config) { c.SessionTTL = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
