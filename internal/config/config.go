package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"taskboard/internal/domain"
)

const DefaultFile = "taskboard.yml"

// Config models taskboard.yml (or taskboard.toml).
type Config struct {
	Server   ServerConfig    `yaml:"server" toml:"server" json:"server"`
	Pages    PagesConfig     `yaml:"pages" toml:"pages" json:"pages"`
	Journal  JournalConfig   `yaml:"journal" toml:"journal" json:"journal"`
	Log      LogConfig       `yaml:"log" toml:"log" json:"log"`
	Labels   Labels          `yaml:"labels" toml:"labels" json:"labels"`
	Auth     AuthConfig      `yaml:"auth" toml:"auth" json:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks" toml:"webhooks" json:"webhooks"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" toml:"addr" json:"addr"`
	BasePath        string        `yaml:"base_path" toml:"base_path" json:"base_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" toml:"shutdown_timeout" json:"shutdown_timeout"`
}

type PagesConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" toml:"idle_ttl" json:"idle_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval" json:"sweep_interval"`
	MaxOpen       int           `yaml:"max_open" toml:"max_open" json:"max_open"`
}

type JournalConfig struct {
	DSN string `yaml:"dsn" toml:"dsn" json:"dsn"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// Labels are the headings shown above the three containers.
type Labels struct {
	New      string `yaml:"new" toml:"new" json:"new"`
	Current  string `yaml:"current" toml:"current" json:"current"`
	Archived string `yaml:"archived" toml:"archived" json:"archived"`
}

// For returns the heading of the container that displays stage s.
func (l Labels) For(s domain.Stage) string {
	switch s {
	case domain.StageInProgress:
		return l.Current
	case domain.StageArchived:
		return l.Archived
	}
	return l.New
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret" json:"jwt_secret"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" toml:"url" json:"url"`
	Events         []string `yaml:"events" toml:"events" json:"events"`
	Secret         string   `yaml:"secret" toml:"secret" json:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled" toml:"enabled" json:"enabled,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/v0"
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 5 * time.Second
	}
	if c.Pages.IdleTTL == 0 {
		c.Pages.IdleTTL = 30 * time.Minute
	}
	if c.Pages.SweepInterval == 0 {
		c.Pages.SweepInterval = time.Minute
	}
	if c.Pages.MaxOpen == 0 {
		c.Pages.MaxOpen = 1000
	}
	if c.Journal.DSN == "" {
		c.Journal.DSN = "file:taskboard-journal?mode=memory&cache=shared"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Labels.New == "" {
		c.Labels.New = "New"
	}
	if c.Labels.Current == "" {
		c.Labels.Current = "In progress"
	}
	if c.Labels.Archived == "" {
		c.Labels.Archived = "Archived"
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("config.log.format must be one of text, json, logfmt")
	}
	if c.Pages.SweepInterval > c.Pages.IdleTTL {
		return fmt.Errorf("config.pages.sweep_interval must not exceed config.pages.idle_ttl")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// Load reads and validates the config file at path. The format is chosen by
// extension; .toml files are read as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tb config init", path)
		}
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return Load(path)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	return finish(&cfg)
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config as YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// YAML renders cfg for display.
func (c *Config) YAML() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /v0
  shutdown_timeout: 5s

pages:
  idle_ttl: 30m
  sweep_interval: 1m
  max_open: 1000

journal:
  # memory-resident; point at a file only to debug a session
  dsn: "file:taskboard-journal?mode=memory&cache=shared"

log:
  level: info
  format: text

labels:
  new: New
  current: In progress
  archived: Archived

webhooks: []
`
