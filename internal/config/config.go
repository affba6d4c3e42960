// ABOUTME: Configuration loading and parsing for flux-gateway
// ABOUTME: Supports YAML files with environment variable expansion and .env loading

package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultBackendURL is used when neither the config file nor the
// BACKEND_URL environment variable names the inference backend.
const DefaultBackendURL = "http://localhost:8000"

// DefaultUploadMaxBytes caps multipart uploads at 50 MB.
const DefaultUploadMaxBytes = 50 << 20

// Config represents the complete flux-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Database DatabaseConfig `yaml:"database"`
	Upload   UploadConfig   `yaml:"upload"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// BackendConfig holds the inference backend location
type BackendConfig struct {
	BaseURL string `yaml:"base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "memory" or "sqlite"
	Path   string `yaml:"path"`   // sqlite only
}

// UploadConfig holds upload limits
type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. A `.env` file in the working directory is loaded first, and
// ${VAR_NAME} patterns in the YAML are expanded from the environment. A
// missing config file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	// Best-effort: a missing .env is the normal case
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err == nil {
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// applyDefaults fills unset fields. BACKEND_URL wins over the config file
// so a deployment can repoint the backend without editing YAML.
func (c *Config) applyDefaults() {
	if env := os.Getenv("BACKEND_URL"); env != "" {
		c.Backend.BaseURL = env
	}
	if c.Backend.BaseURL == "" {
		c.Backend.BaseURL = DefaultBackendURL
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = ":3000"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "memory"
	}
	if c.Upload.MaxBytes == 0 {
		c.Upload.MaxBytes = DefaultUploadMaxBytes
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory":
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required with the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}

	if c.Upload.MaxBytes < 0 {
		return fmt.Errorf("upload.max_bytes must be positive")
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
