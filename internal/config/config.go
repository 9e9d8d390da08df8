package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docdiagram/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "docdiagram.yaml"

// Config represents the application configuration.
type Config struct {
	Diagram  DiagramConfig  `yaml:"diagram"`
	Renderer RendererConfig `yaml:"renderer"`
	Cache    CacheConfig    `yaml:"cache"`
	Site     SiteConfig     `yaml:"site"`
	Server   ServerConfig   `yaml:"server"`
	Notify   NotifyConfig   `yaml:"notify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DiagramConfig identifies placeholders and the containers replacing them.
type DiagramConfig struct {
	Language    string `yaml:"language"`
	MarkerClass string `yaml:"marker_class"`
}

// RendererConfig selects and configures the diagram rendering library.
type RendererConfig struct {
	Kind   RendererKind `yaml:"kind"`
	Theme  string       `yaml:"theme,omitempty"`
	Script ScriptConfig `yaml:"script"`
	Ink    InkConfig    `yaml:"ink"`
	// WaitTimeout bounds how long a page waits for an asynchronous renderer run.
	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// ScriptConfig configures browser-side rendering.
type ScriptConfig struct {
	ModuleURL string `yaml:"module_url"`
}

// InkConfig configures server-side rendering through a mermaid.ink compatible service.
type InkConfig struct {
	BaseURL        string           `yaml:"base_url"`
	Timeout        time.Duration    `yaml:"timeout"`
	Retries        *int             `yaml:"retries"`
	Backoff        RetryBackoffMode `yaml:"backoff"`
	BackoffInitial time.Duration    `yaml:"backoff_initial"`
	BackoffMax     time.Duration    `yaml:"backoff_max"`
	Concurrency    int              `yaml:"concurrency"`
}

// RetryCount returns the configured retries. Zero disables retrying.
func (c InkConfig) RetryCount() int {
	if c.Retries == nil {
		return DefaultInkRetries
	}
	return *c.Retries
}

// CacheConfig configures the rendered SVG cache. An empty path disables it.
type CacheConfig struct {
	Path string `yaml:"path"`
}

// SiteConfig selects the pages of a site directory.
type SiteConfig struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude,omitempty"`
}

// ServerConfig configures the preview server.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	MaxBufferBytes int    `yaml:"max_buffer_bytes"`
	MetricsPath    string `yaml:"metrics_path"`
}

// NotifyConfig configures activation event publishing. An empty URL disables it.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "Note: .env file couldn't be loaded: %v\n", err)
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return nil, errors.NotFoundError("configuration file not found").
			WithContext("path", configPath).
			Build()
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to read config file").
			WithContext("path", configPath).
			Build()
	}

	// Expand environment variables in the YAML content
	return Parse([]byte(os.ExpandEnv(string(data))))
}

// Parse decodes YAML configuration, applies defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.WrapError(err, errors.CategoryConfig, "failed to unmarshal config").Fatal().Build()
	}
	if err := normalize(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.ConfigError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	example := Default()
	example.Site.Exclude = []string{"**/404.html"}
	example.Cache.Path = ".docdiagram/cache.db"

	data, err := yaml.Marshal(example)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal config").Build()
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.WrapError(err, errors.CategoryFileSystem, "failed to write config file").
			WithContext("path", configPath).
			Build()
	}
	return nil
}
