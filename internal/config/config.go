package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names recognized by the server. Local file URLs are only
// honored outside of production.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Monitor MonitorConfig `yaml:"monitor"`
	Archive ArchiveConfig `yaml:"archive"`
}

// ServerConfig configures the diff API listeners and diffing limits.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AdminPort int    `yaml:"admin_port"`
	// Environment selects development or production behavior ("production"
	// rejects file:// sources). Overridable via PAGEDIFF_APP_ENV.
	Environment string `yaml:"environment"`
	// AllowedOrigins is the CORS allow list. A single "*" entry allows any
	// origin (the request Origin is echoed back).
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	DiffTimeout    time.Duration `yaml:"diff_timeout"`
	// Workers bounds the number of concurrently executing diffs.
	Workers int `yaml:"workers"`
	// RestartBrokenDiffer keeps the server alive when the diff pool breaks
	// repeatedly instead of exiting. Overridable via PAGEDIFF_RESTART_BROKEN_DIFFER.
	RestartBrokenDiffer bool `yaml:"restart_broken_differ"`
	// DiffCacheSize is the number of diff results kept in the Etag-keyed LRU.
	DiffCacheSize int `yaml:"diff_cache_size"`
}

// MonitorConfig configures periodic page capture.
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	Pages    []Page        `yaml:"pages"`
	DBPath   string        `yaml:"db_path"`
	NATS     NATSConfig    `yaml:"nats"`
}

// Page is a tracked page.
type Page struct {
	URL string `yaml:"url"`
	// Tags carry free-form metadata recorded with each version.
	Tags map[string]string `yaml:"tags,omitempty"`
}

// NATSConfig configures change-event publishing.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

// ArchiveConfig configures the page-archive import client.
type ArchiveConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists; real env always wins.
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content.
	expandedData := os.ExpandEnv(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied and no tracked pages.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if c.Server.Port == c.Server.AdminPort {
		return fmt.Errorf("server port and admin port must differ (both %d)", c.Server.Port)
	}
	if c.Server.Environment != EnvDevelopment && c.Server.Environment != EnvProduction {
		return fmt.Errorf("unknown environment %q (want %q or %q)",
			c.Server.Environment, EnvDevelopment, EnvProduction)
	}
	for _, p := range c.Monitor.Pages {
		if p.URL == "" {
			return fmt.Errorf("monitor pages must have a url")
		}
	}
	if c.Monitor.Enabled && c.Monitor.DBPath == "" {
		return fmt.Errorf("monitor.db_path is required when monitoring is enabled")
	}
	return nil
}

// IsProduction reports whether the server runs with production restrictions.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := `# pagediff configuration
server:
  port: 8080
  admin_port: 8081
  environment: development
  allowed_origins: []
  max_body_bytes: 10485760
  fetch_timeout: 30s
  diff_timeout: 60s
  workers: 4

monitor:
  enabled: false
  interval: 15m
  db_path: ./pagediff.db
  pages: []
    # - url: https://example.org/press-releases
    #   tags:
    #     site: example
  nats:
    enabled: false
    url: nats://127.0.0.1:4222
    subject: pagediff.changes
    stream: PAGEDIFF

archive:
  base_url: ""
  timeout: 30s
`
	return os.WriteFile(configPath, []byte(example), 0o644)
}
