package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultRefreshInterval = 10 * time.Minute
	DefaultCacheDir        = ".cache"
	DefaultBaseURL         = "https://api.openweathermap.org"
	DefaultAPIKeyEnv       = "OPENWEATHER_API_KEY"
	DefaultUnits           = "metric"
	DefaultLang            = "kr"
	DefaultTimeout         = 10 * time.Second
	DefaultSnapshotTTL     = 30 * time.Minute
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
)

// envPrefix is the prefix of environment variables that override file values.
const envPrefix = "CAIWATCH"

// Config is the top-level configuration. Fields map 1:1 to config.example.yaml.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	OpenWeather OpenWeatherConfig `yaml:"openweather"`
	Locations   []Location        `yaml:"locations" validate:"dive"`
	Alerts      AlertsConfig      `yaml:"alerts"`
}

// AgentConfig holds process-wide settings.
type AgentConfig struct {
	// RefreshInterval controls how often data is re-fetched in watch mode.
	RefreshInterval time.Duration `yaml:"refresh_interval" envconfig:"REFRESH_INTERVAL"`

	// CacheDir is where the last fetched responses are stored, one
	// sub-directory per location.
	CacheDir string `yaml:"cache_dir" envconfig:"CACHE_DIR"`

	// CompressCache stores cached responses zstd-compressed.
	CompressCache bool `yaml:"compress_cache" envconfig:"COMPRESS_CACHE"`

	// HTTPPort serves the status API and /metrics when non-zero (watch mode).
	HTTPPort int `yaml:"http_port" envconfig:"HTTP_PORT" validate:"gte=0,lte=65535"`

	// TextfilePath, when set, receives a Prometheus text exposition of the
	// latest results after every refresh.
	TextfilePath string `yaml:"textfile_path" envconfig:"TEXTFILE_PATH"`

	// SnapshotTTL is how long a location's latest result is served by the
	// status API without being refreshed.
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	// LogFormat is one of: json | text.
	LogFormat string `yaml:"log_format" envconfig:"LOG_FORMAT"`
}

// OpenWeatherConfig configures the OpenWeather API client.
type OpenWeatherConfig struct {
	BaseURL string `yaml:"base_url" validate:"url"`

	// APIKeyEnv is the name of the environment variable holding the key used
	// for the onecall endpoint.
	APIKeyEnv string `yaml:"api_key_env"`

	// AirKeyEnv optionally names a separate key for the air pollution
	// endpoints. Falls back to APIKeyEnv when empty.
	AirKeyEnv string `yaml:"air_key_env"`

	Units   string        `yaml:"units"`
	Lang    string        `yaml:"lang"`
	Timeout time.Duration `yaml:"timeout"`
}

// APIKey returns the onecall API key resolved from the environment.
func (o OpenWeatherConfig) APIKey() string {
	if o.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(o.APIKeyEnv)
}

// AirKey returns the air pollution API key resolved from the environment.
func (o OpenWeatherConfig) AirKey() string {
	if o.AirKeyEnv == "" {
		return o.APIKey()
	}
	return os.Getenv(o.AirKeyEnv)
}

// Location is one place to monitor.
type Location struct {
	// ID is a unique, human-readable identifier; also the cache sub-directory.
	ID string `yaml:"id" validate:"required,hostname_rfc1123"`

	// Name is an optional display name.
	Name string `yaml:"name"`

	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `yaml:"lon" validate:"gte=-180,lte=180"`
}

// AlertsConfig holds all alerting rules and webhook targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines a threshold-based alert condition.
type AlertRule struct {
	// Name is the human-readable alert identifier.
	Name string `yaml:"name"`

	// Condition is an expression like "cai > 250" or "bad_pollutants >= 2".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Load reads and parses the YAML config file at path.
//
// A .env file in the working directory is applied first (if present) so the
// API key variables named in the config can live there. Variables it set are
// refreshed on every Load, while variables exported by the shell win. Missing
// optional fields are filled with defaults, then CAIWATCH_* environment
// variables override the agent section.
func Load(path string) (*Config, error) {
	if err := dotenv.apply(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := envconfig.Process(envPrefix, &cfg.Agent); err != nil {
		return nil, fmt.Errorf("config: env overrides: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			RefreshInterval: DefaultRefreshInterval,
			CacheDir:        DefaultCacheDir,
			SnapshotTTL:     DefaultSnapshotTTL,
			LogLevel:        DefaultLogLevel,
			LogFormat:       DefaultLogFormat,
		},
		OpenWeather: OpenWeatherConfig{
			BaseURL:   DefaultBaseURL,
			APIKeyEnv: DefaultAPIKeyEnv,
			Units:     DefaultUnits,
			Lang:      DefaultLang,
			Timeout:   DefaultTimeout,
		},
	}
}

var structValidator = validator.New()

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return err
	}
	if cfg.Agent.RefreshInterval <= 0 {
		return fmt.Errorf("agent.refresh_interval must be positive")
	}
	if cfg.Agent.CacheDir == "" {
		return fmt.Errorf("agent.cache_dir is required")
	}
	if cfg.Agent.SnapshotTTL <= 0 {
		return fmt.Errorf("agent.snapshot_ttl must be positive")
	}
	switch cfg.Agent.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("agent.log_level: unknown level %q", cfg.Agent.LogLevel)
	}
	switch cfg.Agent.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("agent.log_format: unknown format %q", cfg.Agent.LogFormat)
	}
	switch cfg.OpenWeather.Units {
	case "standard", "metric", "imperial":
	default:
		return fmt.Errorf("openweather.units: unknown units %q", cfg.OpenWeather.Units)
	}
	if cfg.OpenWeather.Timeout <= 0 {
		return fmt.Errorf("openweather.timeout must be positive")
	}

	if len(cfg.Locations) == 0 {
		return fmt.Errorf("at least one location is required")
	}
	seen := make(map[string]bool, len(cfg.Locations))
	for i, loc := range cfg.Locations {
		if seen[loc.ID] {
			return fmt.Errorf("locations[%d]: duplicate id %q", i, loc.ID)
		}
		seen[loc.ID] = true
	}

	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if r.Condition == "" {
			return fmt.Errorf("alerts.rules[%d] %q: condition is required", i, r.Name)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q", i, w.Type)
		}
	}
	return nil
}
