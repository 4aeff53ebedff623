package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Sites     SitesConfig     `mapstructure:"sites"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Device    DeviceConfig    `mapstructure:"device"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
	// RequestTimeout bounds device request/reply round trips, in seconds.
	RequestTimeout int `mapstructure:"request_timeout"`
}

type ValkeyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

type TelemetryConfig struct {
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	Enabled      bool    `mapstructure:"enabled"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type TemporalConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
	// Inline starts visit workflows straight from the engine's dispatcher
	// instead of from the transition stream consumer.
	Inline bool `mapstructure:"inline"`
}

// SitesConfig selects where the authoritative site list comes from.
type SitesConfig struct {
	Source   string `mapstructure:"source"` // http | postgres | static
	URL      string `mapstructure:"url"`
	Timeout  int    `mapstructure:"timeout"`   // seconds
	CacheTTL int    `mapstructure:"cache_ttl"` // seconds
}

type EngineConfig struct {
	RegistrationHandle string `mapstructure:"registration_handle"`
	ArbiterShards      int    `mapstructure:"arbiter_shards"`
	DispatchQueue      int    `mapstructure:"dispatch_queue"`
	BroadcastBuffer    int    `mapstructure:"broadcast_buffer"`
	RawBuffer          int    `mapstructure:"raw_buffer"`
	EffectTimeout      int    `mapstructure:"effect_timeout"`  // seconds
	ResyncInterval     int    `mapstructure:"resync_interval"` // seconds, 0 disables
}

// DeviceConfig describes the device the engine is bound to.
type DeviceConfig struct {
	ID                 string `mapstructure:"id"`
	LocationCapability bool   `mapstructure:"location_capability"`
	MotionCapability   bool   `mapstructure:"motion_capability"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (n NATSConfig) Timeout() time.Duration       { return seconds(n.RequestTimeout) }
func (s SitesConfig) FetchTimeout() time.Duration { return seconds(s.Timeout) }
func (s SitesConfig) CacheTTLDuration() time.Duration {
	return seconds(s.CacheTTL)
}
func (e EngineConfig) EffectTimeoutDuration() time.Duration  { return seconds(e.EffectTimeout) }
func (e EngineConfig) ResyncIntervalDuration() time.Duration { return seconds(e.ResyncInterval) }

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: SITEWATCH_DATABASE_HOST → database.host
	v.SetEnvPrefix("SITEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("database.enabled", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "sitewatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "sitewatch")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.request_timeout", 5)
	v.SetDefault("valkey.enabled", true)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_endpoint", "tempo:4317")
	v.SetDefault("telemetry.enabled", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("temporal.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "site-visits")
	v.SetDefault("temporal.inline", false)
	v.SetDefault("sites.source", "static")
	v.SetDefault("sites.url", "")
	v.SetDefault("sites.timeout", 10)
	v.SetDefault("sites.cache_ttl", 86400)
	v.SetDefault("engine.registration_handle", "sitewatch-geofences")
	v.SetDefault("engine.arbiter_shards", 8)
	v.SetDefault("engine.dispatch_queue", 64)
	v.SetDefault("engine.broadcast_buffer", 32)
	v.SetDefault("engine.raw_buffer", 64)
	v.SetDefault("engine.effect_timeout", 10)
	v.SetDefault("engine.resync_interval", 0)
	v.SetDefault("device.id", "default")
	v.SetDefault("device.location_capability", true)
	v.SetDefault("device.motion_capability", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if c.Database.Enabled {
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	}
	if c.NATS.URL == "" {
		errs = append(errs, "nats.url is required")
	}
	if c.NATS.RequestTimeout <= 0 {
		errs = append(errs, "nats.request_timeout must be positive")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.sample_ratio must be 0-1, got %g", c.Telemetry.SampleRatio))
	}
	if c.Temporal.Enabled && c.Temporal.HostPort == "" {
		errs = append(errs, "temporal.host_port is required")
	}

	switch c.Sites.Source {
	case "static":
	case "http":
		if c.Sites.URL == "" {
			errs = append(errs, "sites.url is required when sites.source is http")
		}
	case "postgres":
		if !c.Database.Enabled {
			errs = append(errs, "sites.source postgres requires database.enabled")
		}
	default:
		errs = append(errs, fmt.Sprintf("sites.source must be http, postgres or static, got %q", c.Sites.Source))
	}
	if c.Sites.Timeout <= 0 {
		errs = append(errs, "sites.timeout must be positive")
	}

	if c.Engine.ArbiterShards <= 0 {
		errs = append(errs, "engine.arbiter_shards must be positive")
	}
	if c.Engine.DispatchQueue <= 0 {
		errs = append(errs, "engine.dispatch_queue must be positive")
	}
	if c.Engine.BroadcastBuffer <= 0 {
		errs = append(errs, "engine.broadcast_buffer must be positive")
	}
	if c.Engine.RawBuffer <= 0 {
		errs = append(errs, "engine.raw_buffer must be positive")
	}
	if c.Engine.ResyncInterval < 0 {
		errs = append(errs, "engine.resync_interval must not be negative")
	}
	if c.Device.ID == "" || strings.ContainsAny(c.Device.ID, ".*> ") {
		errs = append(errs, fmt.Sprintf("device.id must be a single subject token, got %q", c.Device.ID))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
