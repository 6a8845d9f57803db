package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Config models orgpool.yml.
type Config struct {
	Hub struct {
		InstanceURL string `yaml:"instance_url"`
		APIVersion  string `yaml:"api_version"`
		Username    string `yaml:"username"`
	} `yaml:"hub"`
	Pool struct {
		Tag            string `yaml:"tag"`
		Max            int    `yaml:"max"`
		ExpiryDays     int    `yaml:"expiry_days"`
		DefinitionFile string `yaml:"definition_file"`
		BatchSize      int    `yaml:"batch_size"`
	} `yaml:"pool"`
	Notify struct {
		Enabled bool   `yaml:"enabled"`
		Subject string `yaml:"subject"`
	} `yaml:"notify"`
}

var apiVersionRe = regexp.MustCompile(`^\d+\.\d$`)

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create it or run orgpool config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Hub.InstanceURL == "" {
		return fmt.Errorf("config.hub.instance_url is required")
	}
	if c.Hub.APIVersion == "" {
		return fmt.Errorf("config.hub.api_version is required")
	}
	if !apiVersionRe.MatchString(c.Hub.APIVersion) {
		return fmt.Errorf("config.hub.api_version %q must look like 54.0", c.Hub.APIVersion)
	}
	if c.Hub.Username == "" {
		return fmt.Errorf("config.hub.username is required")
	}
	if c.Pool.Max <= 0 {
		return fmt.Errorf("config.pool.max must be positive")
	}
	if c.Pool.ExpiryDays < 1 || c.Pool.ExpiryDays > 30 {
		return fmt.Errorf("config.pool.expiry_days must be between 1 and 30")
	}
	if c.Pool.BatchSize <= 0 || c.Pool.BatchSize > c.Pool.Max {
		return fmt.Errorf("config.pool.batch_size must be between 1 and pool.max")
	}
	if c.Pool.DefinitionFile == "" {
		return fmt.Errorf("config.pool.definition_file is required")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "orgpool.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(instanceURL, username string) string {
	return fmt.Sprintf(defaultTemplate, instanceURL, username)
}

// Default returns the default Config struct for a hub.
func Default(instanceURL, username string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, instanceURL, username))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `hub:
  instance_url: %s
  api_version: "54.0"
  username: %s

pool:
  tag: ci
  max: 20
  expiry_days: 2
  definition_file: config/project-scratch-def.json
  batch_size: 10

notify:
  enabled: false
  subject: "Scratch org allocated"
`
