// Package config loads the config file and resolves the settings of one
// invocation from flags, environment, rc file, config file and defaults.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"kanbansync/internal/utils"
)

//go:embed config.sample.yaml
var sampleConfig string

// Hard-coded defaults, the lowest precedence layer.
const (
	DefaultProject       = "Internal TODO"
	DefaultView          = "Kanban"
	DefaultBucket        = "Backlog"
	DefaultTimeout       = 30 * time.Second
	DefaultRetentionDays = 90
	DefaultRCFile        = "~/.zshrc"
)

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// AnalyticsConfig holds analytics settings
type AnalyticsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Config mirrors the config file.
type Config struct {
	BaseURL      string          `yaml:"base_url"`
	Project      string          `yaml:"project"`
	View         string          `yaml:"view"`
	Bucket       string          `yaml:"bucket"`
	RCFile       string          `yaml:"rc_file"`
	TemplatesDir string          `yaml:"templates_dir"`
	Timeout      string          `yaml:"timeout"`
	Analytics    AnalyticsConfig `yaml:"analytics"`
	Logging      LoggingConfig   `yaml:"logging"`
}

// File is a loaded config file: the typed view plus the keys actually
// present, used to report where a setting came from.
type File struct {
	Path   string
	Config *Config
	Raw    map[string]interface{}
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/kanbansync/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// LoadFile reads the config file at path. An empty path means the default
// location; a missing default file is created from the sample. A missing
// explicit file is a configuration error.
func LoadFile(path string) (*File, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if explicit {
			return nil, utils.ErrInvalidSetting("config file", path, "file does not exist")
		}
		if err := WriteSample(path); err != nil {
			// Continue on the sample values when the directory is not writable.
			utils.Debugf("could not create %s: %v", path, err)
		}
		data = []byte(sampleConfig)
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseFile(path, data)
}

// ParseFile parses config file content.
func ParseFile(path string, data []byte) (*File, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, utils.ErrInvalidSetting("config file", path, "invalid YAML: "+err.Error())
	}

	raw := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, utils.ErrInvalidSetting("config file", path, "invalid YAML: "+err.Error())
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &File{Path: path, Config: cfg, Raw: raw}, nil
}

// WriteSample writes the embedded sample config to path, creating parent
// directories. Existing files are left alone.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		if err := ValidateBaseURL(c.BaseURL); err != nil {
			return err
		}
	}
	if c.Timeout != "" {
		if _, err := ParseTimeout(c.Timeout); err != nil {
			return err
		}
	}
	if c.Analytics.RetentionDays < 0 {
		return utils.ErrInvalidSetting("analytics.retention_days", fmt.Sprint(c.Analytics.RetentionDays), "must not be negative")
	}
	return nil
}

// ValidateBaseURL accepts absolute http(s) URLs.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return utils.ErrInvalidSetting("base URL", raw, "expected an absolute http(s) URL")
	}
	return nil
}

// ParseTimeout parses a positive duration such as "30s".
func ParseTimeout(raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, utils.ErrInvalidSetting("timeout", raw, "expected a positive duration such as 30s")
	}
	return d, nil
}

// getXDGDir returns a directory path following the XDG base directory layout.
// Uses the environment variable if set, otherwise falls back to ~/{fallbackPath}/kanbansync.
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, "kanbansync")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", fallbackPath, "kanbansync")
	}
	return filepath.Join(home, fallbackPath, "kanbansync")
}

// GetConfigDir returns the configuration directory following the XDG base directory layout
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following the XDG base directory layout
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return os.ExpandEnv(path)
}
