package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamtrace/chainabuse-sync/internal/config"
)

func memoryConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{Port: 8080},
		API: config.APIConfig{
			URL:            "https://example.test/graphql",
			Token:          "token",
			PageSize:       50,
			TimeoutSeconds: 5,
			Chains:         []string{"ETH"},
		},
		Fetch:   config.FetchConfig{IntervalMinutes: 0, TrustedOnly: true},
		DB:      config.DBConfig{Provider: "memory"},
		Archive: config.ArchiveConfig{Provider: "memory"},
		Notify:  config.NotifyConfig{Provider: "memory"},
	}
}

// Only one fully-built App per process: the progress sink registers its
// collectors against the default Prometheus registry.
func TestNewWiresMemoryProviders(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	require.NoError(t, err)

	assert.NotNil(t, a.Logger())
	assert.NotNil(t, a.Store())
	assert.NotNil(t, a.Fetcher())
	assert.NotNil(t, a.Scheduler())
	assert.NotNil(t, a.Server())
	assert.False(t, a.Scheduler().Enabled())
	assert.Equal(t, "memory", a.Config().DB.Provider)

	a.Close()
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	cfg := memoryConfig()
	cfg.DB.Provider = "oracle"
	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown db provider")

	cfg = memoryConfig()
	cfg.Archive.Provider = "s3"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown archive provider")

	cfg = memoryConfig()
	cfg.Notify.Provider = "kafka"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown notify provider")
}
