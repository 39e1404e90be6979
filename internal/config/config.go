// Package config loads the server's process configuration from the
// environment, optionally seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the process configuration. Every field has an environment
// variable and a default; command-line flags override both.
type Config struct {
	// ServerName is reported as serverInfo.name. ENV: MCP_SERVER_NAME
	ServerName string `env:"MCP_SERVER_NAME,default=MCP File Server"`
	// ServerVersion is reported as serverInfo.version. ENV: MCP_SERVER_VERSION
	ServerVersion string `env:"MCP_SERVER_VERSION,default=1.0.0"`
	// Instructions are returned from initialize when set. ENV: MCP_INSTRUCTIONS
	Instructions string `env:"MCP_INSTRUCTIONS"`

	// LogLevel is one of debug, info, warn, error. ENV: MCP_LOG_LEVEL
	LogLevel string `env:"MCP_LOG_LEVEL,default=info"`
	// LogFormat is text or json. ENV: MCP_LOG_FORMAT
	LogFormat string `env:"MCP_LOG_FORMAT,default=text"`

	// ShutdownGrace bounds the drain of in-flight requests. ENV: MCP_SHUTDOWN_GRACE
	ShutdownGrace time.Duration `env:"MCP_SHUTDOWN_GRACE,default=5s"`

	// ToolsManifest is an optional YAML file describing the tool set. It is
	// watched for changes. ENV: MCP_TOOLS_MANIFEST
	ToolsManifest string `env:"MCP_TOOLS_MANIFEST"`
}

// Load reads the given .env files, skipping ones that do not exist, and
// decodes the environment into a Config. Variables already present in the
// environment win over .env values.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if f == "" {
			continue
		}
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ServerName) == "" {
		errs = append(errs, errors.New("server name must not be empty"))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q (want text or json)", c.LogFormat))
	}
	if c.ShutdownGrace <= 0 {
		errs = append(errs, fmt.Errorf("shutdown grace must be positive, got %s", c.ShutdownGrace))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}
