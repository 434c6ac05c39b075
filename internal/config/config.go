package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimezone         = "America/New_York"
	DefaultAddr             = "127.0.0.1:8080"
	DefaultTimeout          = 10 * time.Second
	DefaultFetchConcurrency = 4
)

// Config models cadence.yml.
type Config struct {
	User     string `yaml:"user"`
	Timezone string `yaml:"timezone"`
	Server   struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
		// AllowUserHeader trusts X-User-Id without a token. Local use only.
		AllowUserHeader bool `yaml:"allow_user_header"`
	} `yaml:"server"`
	Client struct {
		APIURL           string `yaml:"api_url"`
		Timeout          string `yaml:"timeout"`
		FetchConcurrency int    `yaml:"fetch_concurrency"`
	} `yaml:"client"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with cadence init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Timezone) == "" {
		return fmt.Errorf("config.timezone is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config.timezone %q: %w", c.Timezone, err)
	}
	if bp := c.Server.BasePath; bp != "" && !strings.HasPrefix(bp, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Client.Timeout != "" {
		d, err := time.ParseDuration(c.Client.Timeout)
		if err != nil {
			return fmt.Errorf("config.client.timeout: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("config.client.timeout must be positive")
		}
	}
	if c.Client.FetchConcurrency < 0 {
		return fmt.Errorf("config.client.fetch_concurrency must be >= 0")
	}
	return nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func (c *Config) ClientTimeout() time.Duration {
	if c.Client.Timeout == "" {
		return DefaultTimeout
	}
	d, err := time.ParseDuration(c.Client.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

func (c *Config) Concurrency() int {
	if c.Client.FetchConcurrency <= 0 {
		return DefaultFetchConcurrency
	}
	return c.Client.FetchConcurrency
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "cadence.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(user string) string {
	return fmt.Sprintf(defaultTemplate, user)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config for a user.
func Default(user string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(user))).Decode(&cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default("")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write stores cfg as the workspace config.
func Write(workspace string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(workspace), data, 0o644)
}

const defaultTemplate = `user: %q
timezone: America/New_York

server:
  addr: 127.0.0.1:8080
  base_path: ""
  allow_user_header: false

client:
  api_url: ""
  timeout: 10s
  fetch_concurrency: 4
`
