package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"kanbansync/internal/utils"
)

// Setting sources, reported by `config show`.
const (
	SourceFlag    = "flag"
	SourceEnv     = "env"
	SourceRC      = "rc"
	SourceFile    = "file"
	SourceKeyring = "keyring"
	SourceDefault = "default"
	SourceUnset   = "unset"
)

// binding ties a settings key to its flag, environment variable and rc
// variable. Empty names mean the layer does not apply.
type binding struct {
	key  string
	flag string
	env  string
	rc   string
}

var bindings = []binding{
	{key: "base_url", flag: "base-url", env: "VIKUNJA_BASE_URL", rc: "VIKUNJA_BASE_URL"},
	{key: "token", flag: "token", env: "VIKUNJA_API_TOKEN", rc: "VIKUNJA_API_TOKEN"},
	{key: "project", flag: "project", env: "VIKUNJA_PROJECT_NAME", rc: "VIKUNJA_PROJECT_NAME"},
	{key: "view", flag: "view", env: "VIKUNJA_VIEW_NAME", rc: "VIKUNJA_VIEW_NAME"},
	{key: "bucket", env: "VIKUNJA_BUCKET_NAME", rc: "VIKUNJA_BUCKET_NAME"},
	{key: "templates_dir", env: "KANBANSYNC_TEMPLATES_DIR"},
	{key: "timeout", env: "KANBANSYNC_TIMEOUT"},
	{key: "analytics.enabled", env: "KANBANSYNC_ANALYTICS_ENABLED"},
	{key: "analytics.path"},
	{key: "analytics.retention_days"},
	{key: "logging.verbose", flag: "verbose"},
}

// Options are the inputs to Resolve.
type Options struct {
	// Flags holds the persistent flags (base-url, token, project, project-id,
	// view, view-id, config, rc-file, verbose). May be nil.
	Flags *pflag.FlagSet
	// TokenFallback is consulted with the resolved base URL when no other
	// layer supplies a token.
	TokenFallback func(baseURL string) (string, error)
}

// Settings is the resolved, read-only configuration of one invocation.
type Settings struct {
	BaseURL      string
	Token        string
	Project      string
	ProjectID    int64
	View         string
	ViewID       int64
	Bucket       string
	TemplatesDir string
	Timeout      time.Duration
	Verbose      bool

	AnalyticsEnabled       bool
	AnalyticsPath          string
	AnalyticsRetentionDays int

	ConfigPath string
	RCPath     string

	// Sources maps each settings key to the layer that supplied it.
	Sources map[string]string
}

// Resolve builds Settings with precedence flag > environment > rc file >
// config file > default. The token additionally falls back to
// Options.TokenFallback.
func Resolve(opts Options) (*Settings, error) {
	fs := opts.Flags
	if fs == nil {
		fs = pflag.NewFlagSet("kanbansync", pflag.ContinueOnError)
	}

	file, err := LoadFile(flagString(fs, "config"))
	if err != nil {
		return nil, err
	}

	rcPath, rcSource := resolveRCPath(fs, file.Config)
	rcVars, err := LoadRCFile(rcPath)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("project", DefaultProject)
	v.SetDefault("view", DefaultView)
	v.SetDefault("bucket", DefaultBucket)
	v.SetDefault("timeout", DefaultTimeout.String())
	v.SetDefault("analytics.enabled", false)
	v.SetDefault("analytics.path", filepath.Join(GetDataDir(), "analytics.db"))
	v.SetDefault("analytics.retention_days", DefaultRetentionDays)
	v.SetDefault("logging.verbose", false)

	if err := v.MergeConfigMap(file.Raw); err != nil {
		return nil, fmt.Errorf("failed to merge config file: %w", err)
	}
	if rc := rcLayer(rcVars); len(rc) > 0 {
		if err := v.MergeConfigMap(rc); err != nil {
			return nil, fmt.Errorf("failed to merge rc file: %w", err)
		}
	}

	for _, b := range bindings {
		if b.env != "" {
			if err := v.BindEnv(b.key, b.env); err != nil {
				return nil, err
			}
		}
		if b.flag != "" {
			if f := fs.Lookup(b.flag); f != nil {
				if err := v.BindPFlag(b.key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	timeout, err := ParseTimeout(v.GetString("timeout"))
	if err != nil {
		return nil, err
	}

	s := &Settings{
		BaseURL:                strings.TrimRight(strings.TrimSpace(v.GetString("base_url")), "/"),
		Token:                  strings.TrimSpace(v.GetString("token")),
		Project:                v.GetString("project"),
		View:                   v.GetString("view"),
		Bucket:                 v.GetString("bucket"),
		TemplatesDir:           ExpandPath(v.GetString("templates_dir")),
		Timeout:                timeout,
		Verbose:                v.GetBool("logging.verbose"),
		AnalyticsEnabled:       v.GetBool("analytics.enabled"),
		AnalyticsPath:          ExpandPath(v.GetString("analytics.path")),
		AnalyticsRetentionDays: v.GetInt("analytics.retention_days"),
		ConfigPath:             file.Path,
		RCPath:                 rcPath,
		Sources:                map[string]string{"rc_file": rcSource},
	}

	if s.ProjectID, err = flagID(fs, "project-id"); err != nil {
		return nil, err
	}
	if s.ViewID, err = flagID(fs, "view-id"); err != nil {
		return nil, err
	}

	for _, b := range bindings {
		s.Sources[b.key] = sourceOf(b, fs, rcVars, file.Raw)
	}

	if s.Token == "" && opts.TokenFallback != nil {
		token, err := opts.TokenFallback(s.BaseURL)
		if err != nil {
			utils.Debugf("token fallback failed: %v", err)
		} else if token != "" {
			s.Token = token
			s.Sources["token"] = SourceKeyring
		}
	}
	if s.Token == "" {
		s.Sources["token"] = SourceUnset
	}
	if s.BaseURL == "" {
		s.Sources["base_url"] = SourceUnset
	} else if err := ValidateBaseURL(s.BaseURL); err != nil {
		return nil, err
	}

	return s, nil
}

// RequireConnection reports a configuration error when the base URL or the
// token is missing. Call it before any network access.
func (s *Settings) RequireConnection() error {
	if s.BaseURL == "" {
		return utils.ErrMissingSetting("base URL", "VIKUNJA_BASE_URL", "--base-url")
	}
	if s.Token == "" {
		return utils.WrapWithSuggestion(
			fmt.Errorf("%w: missing required setting API token", utils.ErrConfig),
			"set VIKUNJA_API_TOKEN, pass --token, or run 'kanbansync credentials set'",
		)
	}
	return nil
}

// MaskedToken returns the token with all but the last four characters hidden.
func (s *Settings) MaskedToken() string {
	if s.Token == "" {
		return ""
	}
	if len(s.Token) <= 4 {
		return strings.Repeat("*", len(s.Token))
	}
	return strings.Repeat("*", len(s.Token)-4) + s.Token[len(s.Token)-4:]
}

// SortedSources returns the keys of Sources in a stable order.
func (s *Settings) SortedSources() []string {
	keys := make([]string, 0, len(s.Sources))
	for k := range s.Sources {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func resolveRCPath(fs *pflag.FlagSet, cfg *Config) (string, string) {
	if f := fs.Lookup("rc-file"); f != nil && f.Changed {
		return ExpandPath(f.Value.String()), SourceFlag
	}
	if env := os.Getenv("KANBANSYNC_RC_FILE"); env != "" {
		return ExpandPath(env), SourceEnv
	}
	if cfg.RCFile != "" {
		return ExpandPath(cfg.RCFile), SourceFile
	}
	return ExpandPath(DefaultRCFile), SourceDefault
}

// rcLayer maps rc variables onto settings keys.
func rcLayer(vars map[string]string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, b := range bindings {
		if b.rc == "" {
			continue
		}
		if val, ok := vars[b.rc]; ok && val != "" {
			out[b.key] = val
		}
	}
	return out
}

func sourceOf(b binding, fs *pflag.FlagSet, rcVars map[string]string, raw map[string]interface{}) string {
	if b.flag != "" {
		if f := fs.Lookup(b.flag); f != nil && f.Changed {
			return SourceFlag
		}
	}
	if b.env != "" && os.Getenv(b.env) != "" {
		return SourceEnv
	}
	if b.rc != "" && rcVars[b.rc] != "" {
		return SourceRC
	}
	if inRaw(raw, b.key) {
		return SourceFile
	}
	return SourceDefault
}

// inRaw reports whether a dotted key is present in a parsed YAML map.
func inRaw(raw map[string]interface{}, key string) bool {
	parts := strings.Split(key, ".")
	cur := raw
	for i, p := range parts {
		val, ok := cur[p]
		if !ok || val == nil {
			return false
		}
		if i == len(parts)-1 {
			return true
		}
		next, ok := val.(map[string]interface{})
		if !ok {
			return false
		}
		cur = next
	}
	return false
}

func flagString(fs *pflag.FlagSet, name string) string {
	if f := fs.Lookup(name); f != nil {
		return f.Value.String()
	}
	return ""
}

func flagID(fs *pflag.FlagSet, name string) (int64, error) {
	f := fs.Lookup(name)
	if f == nil || !f.Changed {
		return 0, nil
	}
	id, err := strconv.ParseInt(f.Value.String(), 10, 64)
	if err != nil || id <= 0 {
		return 0, utils.ErrInvalidArg("--%s must be a positive integer, got %q", name, f.Value.String())
	}
	return id, nil
}
