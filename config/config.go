// Package config provides YAML configuration parsing for labwatch.
//
// A config file is an alternative to passing every setting as a flag. Flags
// given on the command line override values from the file.
//
// Example configuration:
//
//	url: https://gitlab.example.com
//	token: ${GITLAB_ACCESS_TOKEN}
//	auth_header: private-token
//	database: polls.db
//
//	continuous: true
//	interval: 5m
//	timeout: 30s
//	save_responses: true
//	listen: ":9090"
//
//	headers:
//	  X-Request-Source: labwatch
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// minInterval is the minimum wait between continuous poll cycles.
	minInterval = 1 * time.Second

	defaultInterval = 5 * time.Minute
	defaultDatabase = "labwatch.db"
)

// Config is the root configuration structure for labwatch.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// URL is the base URL of the GitLab instance.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Token is the access token. Supports environment variable substitution.
	Token string `yaml:"token"`

	// AuthHeader is "bearer" (default) or "private-token".
	AuthHeader string `yaml:"auth_header"`

	// Database is a SQLite path or a postgres:// DSN. Defaults to labwatch.db.
	Database string `yaml:"database"`

	// Continuous repeats poll cycles until interrupted.
	Continuous bool `yaml:"continuous"`

	// Interval is the wait between continuous cycles. Defaults to 5m.
	Interval Duration `yaml:"interval"`

	// Timeout bounds each probe request. Zero means no timeout.
	Timeout Duration `yaml:"timeout"`

	// SaveResponses stores raw response bodies on each record.
	SaveResponses bool `yaml:"save_responses"`

	// Listen is the status server address. Empty disables the server.
	Listen string `yaml:"listen"`

	// Headers are extra request headers. Values support environment
	// variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before parsing.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, Token, Database and Header
// values. Defaults are applied for Database and Interval.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Database == "" {
		cfg.Database = defaultDatabase
	}
	if cfg.Interval == 0 {
		cfg.Interval = Duration(defaultInterval)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	var err error

	// url may be left for the command line to supply
	if c.URL != "" {
		if c.URL, err = expandEnvVars(c.URL); err != nil {
			return fmt.Errorf("url: %w", err)
		}
		parsedURL, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("invalid url: %w", err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
		}
	}

	if c.Token, err = expandEnvVars(c.Token); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if c.Database, err = expandEnvVars(c.Database); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	switch strings.ToLower(c.AuthHeader) {
	case "", "bearer", "private-token":
		c.AuthHeader = strings.ToLower(c.AuthHeader)
	default:
		return fmt.Errorf("auth_header must be bearer or private-token, got %q", c.AuthHeader)
	}

	if c.Interval.Duration() < minInterval {
		return fmt.Errorf("interval must be at least %s, got %s", minInterval, c.Interval.Duration())
	}
	if c.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", c.Timeout.Duration())
	}

	for k, v := range c.Headers {
		if k == "" {
			return fmt.Errorf("headers: name must not be empty")
		}
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	return nil
}
