package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxSteps    = 200
	DefaultPolicy      = "default"
	DefaultTimeBonus   = 5
	DefaultGraphCache  = 128
	DefaultAddr        = "127.0.0.1:8080"
	DefaultBasePath    = "/v0"
	DefaultLogMode     = "development"
	defaultConfigName  = "lifeswap.yml"
	maxAllowedMaxSteps = 100000
)

// Config models lifeswap.yml.
type Config struct {
	Engine struct {
		MaxSteps      int    `yaml:"max_steps" json:"max_steps"`
		DefaultPolicy string `yaml:"default_policy" json:"default_policy"`
	} `yaml:"engine" json:"engine"`
	Scoring struct {
		TimeBonus struct {
			BonusPoints int `yaml:"bonus_points" json:"bonus_points"`
		} `yaml:"time_bonus" json:"time_bonus"`
	} `yaml:"scoring" json:"scoring"`
	Cache struct {
		Graphs int `yaml:"graphs" json:"graphs"`
	} `yaml:"cache" json:"cache"`
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
		DevLogin bool   `yaml:"dev_login" json:"dev_login"`
	} `yaml:"server" json:"server"`
	Log struct {
		Mode string `yaml:"mode" json:"mode"`
	} `yaml:"log" json:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks" json:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

// Load reads config from the workspace, falling back to defaults when no file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.MaxSteps <= 0 {
		return fmt.Errorf("config.engine.max_steps must be positive")
	}
	if c.Engine.MaxSteps > maxAllowedMaxSteps {
		return fmt.Errorf("config.engine.max_steps must be at most %d", maxAllowedMaxSteps)
	}
	if strings.TrimSpace(c.Engine.DefaultPolicy) == "" {
		return fmt.Errorf("config.engine.default_policy is required")
	}
	if c.Scoring.TimeBonus.BonusPoints < 0 {
		return fmt.Errorf("config.scoring.time_bonus.bonus_points must not be negative")
	}
	if c.Cache.Graphs <= 0 {
		return fmt.Errorf("config.cache.graphs must be positive")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch strings.ToLower(c.Log.Mode) {
	case "development", "dev", "production", "prod":
	default:
		return fmt.Errorf("config.log.mode must be development or production")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("webhook %d has empty url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("webhook %d has negative timeout", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, defaultConfigName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
// Keys absent from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `engine:
  # hard cap on choices per ledger; guards revisitable hubs from endless loops
  max_steps: 200
  default_policy: default

scoring:
  time_bonus:
    bonus_points: 5

cache:
  graphs: 128

server:
  addr: 127.0.0.1:8080
  base_path: /v0
  dev_login: false

log:
  mode: development

webhooks: []
`
