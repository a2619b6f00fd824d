// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultChains is the set of networks polled when api.chains is not set.
var DefaultChains = []string{
	"BTC", "BINANCE", "ETH", "SOL", "TRON", "POLYGON", "LITECOIN",
	"ARBITRUM", "AVALANCHE", "HBAR", "BASE", "CARDANO", "MULTIVERSX",
	"TON", "ALGORAND",
}

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	API     APIConfig     `mapstructure:"api"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	DB      DBConfig      `mapstructure:"db"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// APIConfig governs the chainabuse client.
type APIConfig struct {
	URL            string   `mapstructure:"url"`
	Token          string   `mapstructure:"token"`
	PageSize       int      `mapstructure:"page_size"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxRetries     int      `mapstructure:"max_retries"`
	RPS            float64  `mapstructure:"rps"`
	Chains         []string `mapstructure:"chains"`
}

// FetchConfig controls the sync pipeline and its schedule.
type FetchConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	TrustedOnly     bool `mapstructure:"trusted_only"`
	ClearExisting   bool `mapstructure:"clear_existing"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ArchiveConfig selects where raw API responses are kept.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// NotifyConfig selects the publisher for stored-report notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ABUSESYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy env names carried over from the original deployment.
	bindLegacyEnv(v, "api.token", "CHAINABUSE_API_TOKEN")
	bindLegacyEnv(v, "fetch.interval_minutes", "UPDATE_INTERVAL_MINUTES")
	bindLegacyEnv(v, "fetch.clear_existing", "CLEAR_EXISTING_DATA")
	bindLegacyEnv(v, "db.dsn", "DATABASE_URL")

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.API.Chains) == 0 {
		cfg.API.Chains = append([]string(nil), DefaultChains...)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func bindLegacyEnv(v *viper.Viper, key, env string) {
	// BindEnv only errors on an empty key.
	_ = v.BindEnv(key, env)
}

// setDefaults registers every config key. Viper's Unmarshal only visits keys
// it knows about, so even keys whose natural default is the zero value must
// be registered here or they cannot be set from the environment alone.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("api.url", "https://www.chainabuse.com/api/graphql-proxy")
	v.SetDefault("api.token", "")
	v.SetDefault("api.chains", []string{})
	v.SetDefault("api.page_size", 100)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.rps", 2.0)
	v.SetDefault("fetch.interval_minutes", 60)
	v.SetDefault("fetch.trusted_only", true)
	v.SetDefault("fetch.clear_existing", false)
	v.SetDefault("db.provider", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.migrate", true)
	v.SetDefault("archive.provider", "noop")
	v.SetDefault("archive.base_dir", "")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("notify.provider", "noop")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic_id", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.API.URL == "" {
		return fmt.Errorf("api.url is required")
	}
	if c.API.Token == "" {
		return fmt.Errorf("api.token is required (CHAINABUSE_API_TOKEN)")
	}
	if c.API.PageSize <= 0 || c.API.PageSize > 100 {
		return fmt.Errorf("api.page_size must be in 1..100")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Fetch.IntervalMinutes < 0 {
		return fmt.Errorf("fetch.interval_minutes must be >= 0")
	}
	switch c.DB.Provider {
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required when db.provider is postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db provider: %s", c.DB.Provider)
	}
	switch c.Archive.Provider {
	case "noop", "memory":
	case "local":
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir is required when archive.provider is local")
		}
	case "gcs":
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket is required when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive provider: %s", c.Archive.Provider)
	}
	switch c.Notify.Provider {
	case "noop", "memory":
	case "pubsub":
		if c.Notify.ProjectID == "" || c.Notify.TopicID == "" {
			return fmt.Errorf("notify.project_id and notify.topic_id are required when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify provider: %s", c.Notify.Provider)
	}
	return nil
}

// APITimeout converts the configured client timeout into a duration.
func (c Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

// FetchInterval converts the scheduler interval into a duration. Zero disables
// the scheduler.
func (c Config) FetchInterval() time.Duration {
	return time.Duration(c.Fetch.IntervalMinutes) * time.Minute
}
