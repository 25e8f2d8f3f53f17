package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendHTTP = "http"
	BackendDir  = "dir"
)

// Config models surat.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Templates StoreConfig `yaml:"templates"`
	Results   StoreConfig `yaml:"results"`
	Storage   struct {
		ServiceKey string `yaml:"service_key"`
	} `yaml:"storage"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	// Timezone is used for the default letter date.
	Timezone string          `yaml:"timezone"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// StoreConfig selects and addresses an object store.
type StoreConfig struct {
	Backend   string        `yaml:"backend"`
	BaseURL   string        `yaml:"base_url"`
	Bucket    string        `yaml:"bucket"`
	Dir       string        `yaml:"dir"`
	PublicURL string        `yaml:"public_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret"`
	Events         []string `yaml:"events"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("config.database.path is required")
	}
	if err := c.Templates.validate("templates"); err != nil {
		return err
	}
	if err := c.Results.validate("results"); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config.log.format must be json or console")
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("config.timezone: %w", err)
		}
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

func (s StoreConfig) validate(name string) error {
	switch s.Backend {
	case BackendHTTP:
		if s.BaseURL == "" {
			return fmt.Errorf("config.%s.base_url is required for the http backend", name)
		}
		if s.Bucket == "" {
			return fmt.Errorf("config.%s.bucket is required for the http backend", name)
		}
	case BackendDir:
		if s.Dir == "" {
			return fmt.Errorf("config.%s.dir is required for the dir backend", name)
		}
	default:
		return fmt.Errorf("config.%s.backend must be http or dir", name)
	}
	if s.Timeout < 0 {
		return fmt.Errorf("config.%s.timeout must not be negative", name)
	}
	return nil
}

// Location returns the configured timezone, UTC when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses config from raw YAML bytes over the defaults and validates it.
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

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: ":8080"
  base_path: /api/surat

auth:
  jwt_secret: ""

database:
  path: data/surat.db

templates:
  backend: dir
  dir: templates
  bucket: templates
  timeout: 15s

results:
  backend: dir
  dir: data/hasil
  bucket: surat-hasil

log:
  level: info
  format: json

timezone: Asia/Jakarta
`
