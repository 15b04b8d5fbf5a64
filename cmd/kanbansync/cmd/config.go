package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"kanbansync/internal/config"
)

func newConfigCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(stdout, configPath(cmd))
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the commented sample config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if err := config.WriteSample(path); err != nil {
				return err
			}
			_, err := fmt.Fprintln(stdout, path)
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective settings and where each came from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, cfg)
			if err != nil {
				return err
			}
			return yaml.NewEncoder(stdout).Encode(effectiveSettings(settings))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	})

	return configCmd
}

func configPath(cmd *cobra.Command) string {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return config.ExpandPath(path)
	}
	return config.DefaultConfigPath()
}

type shownSettings struct {
	BaseURL      string            `yaml:"base_url"`
	Token        string            `yaml:"token"`
	Project      string            `yaml:"project"`
	ProjectID    int64             `yaml:"project_id,omitempty"`
	View         string            `yaml:"view"`
	ViewID       int64             `yaml:"view_id,omitempty"`
	Bucket       string            `yaml:"bucket"`
	TemplatesDir string            `yaml:"templates_dir"`
	Timeout      string            `yaml:"timeout"`
	ConfigFile   string            `yaml:"config_file"`
	RCFile       string            `yaml:"rc_file"`
	Analytics    shownAnalytics    `yaml:"analytics"`
	Sources      map[string]string `yaml:"sources"`
}

type shownAnalytics struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

func effectiveSettings(s *config.Settings) shownSettings {
	return shownSettings{
		BaseURL:      s.BaseURL,
		Token:        s.MaskedToken(),
		Project:      s.Project,
		ProjectID:    s.ProjectID,
		View:         s.View,
		ViewID:       s.ViewID,
		Bucket:       s.Bucket,
		TemplatesDir: s.TemplatesDir,
		Timeout:      s.Timeout.String(),
		ConfigFile:   s.ConfigPath,
		RCFile:       s.RCPath,
		Analytics: shownAnalytics{
			Enabled:       s.AnalyticsEnabled,
			Path:          s.AnalyticsPath,
			RetentionDays: s.AnalyticsRetentionDays,
		},
		Sources: s.Sources,
	}
}
