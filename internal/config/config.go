// Package config loads server configuration from an optional YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/gommon/bytes"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// CORS modes.
const (
	CORSModeOpen       = "open"
	CORSModeRestricted = "restricted"
)

// DefaultAllowedOrigin is used in restricted mode when ALLOWED_ORIGINS is not set.
const DefaultAllowedOrigin = "http://localhost:3000"

// AppConfig is the root configuration structure.
type AppConfig struct {
	Server ServerConfig `yaml:"server"`
	CORS   CORSConfig   `yaml:"cors"`
	Upload UploadConfig `yaml:"upload"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host                 string        `yaml:"host"`
	Port                 int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout          time.Duration `yaml:"read_timeout" validate:"min=0"`
	WriteTimeout         time.Duration `yaml:"write_timeout" validate:"min=0"`
	IdleTimeout          time.Duration `yaml:"idle_timeout" validate:"min=0"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout" validate:"min=0"`
	BodyLimit            string        `yaml:"body_limit" validate:"required"`
	EnableCompression    bool          `yaml:"enable_compression"`
	ExposeInternalErrors bool          `yaml:"expose_internal_errors"`
}

// CORSConfig contains cross-origin settings.
type CORSConfig struct {
	Mode           string   `yaml:"mode" validate:"oneof=open restricted"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// UploadConfig contains upload decoding settings.
type UploadConfig struct {
	MaxFileSize     int64    `yaml:"max_file_size" validate:"min=0"`
	DroppedSuffixes []string `yaml:"dropped_suffixes" validate:"dive,required"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8000,
			ReadTimeout:          30 * time.Second,
			WriteTimeout:         30 * time.Second,
			IdleTimeout:          120 * time.Second,
			ShutdownTimeout:      10 * time.Second,
			BodyLimit:            "32M",
			EnableCompression:    true,
			ExposeInternalErrors: true,
		},
		CORS: CORSConfig{
			Mode:           CORSModeOpen,
			AllowedOrigins: []string{DefaultAllowedOrigin},
		},
		Upload: UploadConfig{
			MaxFileSize:     0,
			DroppedSuffixes: []string{".pyc", ".pyo"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file at
// configPath (skipped when empty), then environment variables.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Upload preview server configuration\n# Environment variables override these values.\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks field constraints.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid config: %s failed %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Server.BodyLimitBytes(); err != nil {
		return fmt.Errorf("invalid config: body_limit %q: %w", c.Server.BodyLimit, err)
	}
	return nil
}

// BodyLimitBytes parses BodyLimit ("32M", "512K") into bytes.
func (s ServerConfig) BodyLimitBytes() (int64, error) {
	return bytes.Parse(s.BodyLimit)
}

// applyEnvironmentOverrides lets environment variables override file values.
func (c *AppConfig) applyEnvironmentOverrides() {
	v := viper.New()
	for _, key := range []string{
		"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT",
		"SHUTDOWN_TIMEOUT", "BODY_LIMIT", "ENABLE_COMPRESSION",
		"EXPOSE_INTERNAL_ERRORS", "CORS_MODE", "ALLOWED_ORIGINS",
		"MAX_FILE_SIZE", "LOG_LEVEL", "LOG_FORMAT",
	} {
		_ = v.BindEnv(key)
	}

	if v.IsSet("HOST") {
		c.Server.Host = v.GetString("HOST")
	}
	if v.IsSet("PORT") {
		c.Server.Port = v.GetInt("PORT")
	}
	if v.IsSet("READ_TIMEOUT") {
		c.Server.ReadTimeout = v.GetDuration("READ_TIMEOUT")
	}
	if v.IsSet("WRITE_TIMEOUT") {
		c.Server.WriteTimeout = v.GetDuration("WRITE_TIMEOUT")
	}
	if v.IsSet("IDLE_TIMEOUT") {
		c.Server.IdleTimeout = v.GetDuration("IDLE_TIMEOUT")
	}
	if v.IsSet("SHUTDOWN_TIMEOUT") {
		c.Server.ShutdownTimeout = v.GetDuration("SHUTDOWN_TIMEOUT")
	}
	if v.IsSet("BODY_LIMIT") {
		c.Server.BodyLimit = v.GetString("BODY_LIMIT")
	}
	if v.IsSet("ENABLE_COMPRESSION") {
		c.Server.EnableCompression = v.GetBool("ENABLE_COMPRESSION")
	}
	if v.IsSet("EXPOSE_INTERNAL_ERRORS") {
		c.Server.ExposeInternalErrors = v.GetBool("EXPOSE_INTERNAL_ERRORS")
	}
	if v.IsSet("CORS_MODE") {
		c.CORS.Mode = strings.ToLower(v.GetString("CORS_MODE"))
	}
	if v.IsSet("ALLOWED_ORIGINS") {
		c.CORS.AllowedOrigins = ParseOrigins(v.GetString("ALLOWED_ORIGINS"))
	}
	if v.IsSet("MAX_FILE_SIZE") {
		c.Upload.MaxFileSize = v.GetInt64("MAX_FILE_SIZE")
	}
	if v.IsSet("LOG_LEVEL") {
		c.Log.Level = strings.ToLower(v.GetString("LOG_LEVEL"))
	}
	if v.IsSet("LOG_FORMAT") {
		c.Log.Format = strings.ToLower(v.GetString("LOG_FORMAT"))
	}
}

// ParseOrigins splits a comma-separated origin list, trimming whitespace
// and dropping empty entries.
func ParseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimSpace(o)
		if o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// Origins returns the origins the CORS middleware should allow.
// An empty restricted list falls back to DefaultAllowedOrigin so it never
// widens to every origin.
func (c CORSConfig) Origins() []string {
	if c.Mode != CORSModeRestricted {
		return []string{"*"}
	}
	if len(c.AllowedOrigins) == 0 {
		return []string{DefaultAllowedOrigin}
	}
	return c.AllowedOrigins
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
