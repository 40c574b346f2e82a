// Package config loads and validates process configuration: app/telemetry
// settings plus the market registry consumed by internal/supervisor.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/marketfeed/l2ingest/internal/apperror"
	"github.com/marketfeed/l2ingest/internal/market"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Markets   []MarketEntry   `mapstructure:"markets"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// MarketEntry is the on-disk/env representation of one market.Descriptor.
type MarketEntry struct {
	Exchange           string        `mapstructure:"exchange"`
	Type               string        `mapstructure:"type"` // "spot" or "perp"
	Base               string        `mapstructure:"base"`
	Quote              string        `mapstructure:"quote"`
	Endpoint           string        `mapstructure:"endpoint"`
	TranslatorSelector string        `mapstructure:"translator"`
	PingRequired       bool          `mapstructure:"ping_required"`
	PingInterval       time.Duration `mapstructure:"ping_interval"`
}

// Descriptor maps one registry entry onto a market.Descriptor, or reports a
// ConfigError if required fields are missing.
func (e MarketEntry) Descriptor() (market.Descriptor, error) {
	switch {
	case e.Exchange == "":
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigMissingField, "markets[].exchange")
	case e.Base == "":
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigMissingField, "markets[].base")
	case e.Quote == "":
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigMissingField, "markets[].quote")
	case e.Endpoint == "":
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigMissingField, "markets[].endpoint")
	case e.TranslatorSelector == "":
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigMissingField, "markets[].translator")
	}

	mtype := market.Type(e.Type)
	if mtype != market.Spot && mtype != market.Perp {
		return market.Descriptor{}, apperror.ConfigError(apperror.CodeConfigUnsupportedMode, "markets[].type="+e.Type)
	}

	return market.Descriptor{
		Exchange:           e.Exchange,
		Type:               mtype,
		Base:               e.Base,
		Quote:              e.Quote,
		Endpoint:           e.Endpoint,
		TranslatorSelector: e.TranslatorSelector,
		PingRequired:       e.PingRequired,
		PingInterval:       e.PingInterval,
	}, nil
}

// RedisConfig configures the worked sink.BookSink/TradeSink example.
type RedisConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	Exporter       string `mapstructure:"exporter"` // "console", "zipkin", "otlp"
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	ZipkinEndpoint string `mapstructure:"zipkin_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("INGEST")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	v.BindEnv("app.name", "INGEST_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "INGEST_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "INGEST_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("app.health_port", "INGEST_HEALTH_PORT")

	v.BindEnv("redis.enabled", "INGEST_REDIS_ENABLED")
	v.BindEnv("redis.addr", "INGEST_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.password", "INGEST_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("redis.channel_prefix", "INGEST_REDIS_CHANNEL_PREFIX")

	v.BindEnv("telemetry.enabled", "INGEST_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "INGEST_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.exporter", "INGEST_OTEL_EXPORTER")
	v.BindEnv("telemetry.otlp_endpoint", "INGEST_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv("telemetry.zipkin_endpoint", "INGEST_OTEL_ZIPKIN_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "l2ingest")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "l2")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "l2ingest")
	v.SetDefault("telemetry.exporter", "console")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate checks process-level fields only. Per-market validation is
// intentionally separate (see Descriptors) so one malformed market entry never
// fails process startup for every other configured market.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if len(c.Markets) == 0 {
		return fmt.Errorf("at least one entry in markets is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis.enabled is true")
	}
	return nil
}

// Descriptors resolves every registry entry to a market.Descriptor. Entries
// that fail to resolve are reported individually in errs and excluded from
// descriptors, rather than failing the whole load.
func (c *Config) Descriptors() (descriptors []market.Descriptor, errs []error) {
	for i, entry := range c.Markets {
		d, err := entry.Descriptor()
		if err != nil {
			errs = append(errs, fmt.Errorf("markets[%d]: %w", i, err))
			continue
		}
		descriptors = append(descriptors, d)
	}
	return descriptors, errs
}
