// Package cmd implements the kanbansync command line.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kanbansync/board/vikunja"
	"kanbansync/internal/analytics"
	"kanbansync/internal/config"
	"kanbansync/internal/credentials"
	"kanbansync/internal/shutdown"
	"kanbansync/internal/status"
	"kanbansync/internal/tasksync"
	"kanbansync/internal/templates"
	"kanbansync/internal/utils"
)

// Set at build time
var (
	Version = "dev"
	Commit  = "none"
)

// Config holds injectable dependencies. The zero value uses the process
// stdin, the system keyring and the wall clock.
type Config struct {
	Stdin   io.Reader
	Keyring credentials.Keyring
	Now     func() time.Time

	lifecycle *shutdown.Manager
}

// atExit registers fn to run after the command returns.
func (c *Config) atExit(name string, fn func() error) {
	if c.lifecycle == nil {
		c.lifecycle = shutdown.NewManager(context.Background())
	}
	c.lifecycle.RegisterCleanup(name, func(context.Context) error { return fn() })
}

func (c *Config) stdin() io.Reader {
	if c.Stdin == nil {
		return os.Stdin
	}
	return c.Stdin
}

func (c *Config) credentialManager() *credentials.Manager {
	if c.Keyring == nil {
		return credentials.NewManager()
	}
	return credentials.NewManager(credentials.WithKeyring(c.Keyring))
}

// Execute runs the CLI with the given arguments and IO writers. Failures
// print a single "ERROR: ..." line on stderr and return 1. SIGINT and
// SIGTERM cancel the running command.
func Execute(args []string, stdout, stderr io.Writer, cfg *Config) int {
	run := Config{}
	if cfg != nil {
		run = *cfg
	}
	run.lifecycle = shutdown.NewManager(context.Background())
	stop := run.lifecycle.Listen(os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewKanbanSync(stdout, stderr, &run)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(run.lifecycle.Context())

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if cerr := run.lifecycle.Close(ctx); cerr != nil {
		utils.Debugf("cleanup: %v", cerr)
	}

	if err != nil {
		if run.lifecycle.Interrupted() {
			err = fmt.Errorf("interrupted: %w", err)
		}
		_, _ = fmt.Fprintln(stderr, "ERROR: "+utils.OneLine(err))
		return 1
	}
	return 0
}

const cleanupTimeout = 5 * time.Second

// NewKanbanSync creates the root command with injectable IO
func NewKanbanSync(stdout, stderr io.Writer, cfg *Config) *cobra.Command {
	if cfg == nil {
		cfg = &Config{}
	}

	cmd := &cobra.Command{
		Use:   "kanbansync",
		Short: "Keep a Vikunja kanban task in sync with automated work",
		Long: "kanbansync finds or creates the Vikunja task for a unit of work, reports progress into it\n" +
			"and keeps its labels and bucket current. Every command prints one JSON object.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("base-url", "", "Vikunja instance URL (env VIKUNJA_BASE_URL)")
	pf.String("token", "", "Vikunja API token (env VIKUNJA_API_TOKEN)")
	pf.String("project", "", "Project name (default \""+config.DefaultProject+"\")")
	pf.Int64("project-id", 0, "Project id, skips the name lookup")
	pf.String("view", "", "View name (default \""+config.DefaultView+"\")")
	pf.Int64("view-id", 0, "View id, skips the name lookup")
	pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/kanbansync/config.yaml)")
	pf.String("rc-file", "", "Shell rc file to read VIKUNJA_* variables from (default "+config.DefaultRCFile+")")
	pf.BoolP("verbose", "V", false, "Enable verbose/debug output on stderr")

	cmd.AddCommand(newEnsureTaskCmd(stdout, cfg))
	cmd.AddCommand(newProgressUpdateCmd(stdout, cfg))
	cmd.AddCommand(newLinkPRCmd(stdout, cfg))
	cmd.AddCommand(newMoveTaskCmd(stdout, cfg))
	cmd.AddCommand(newLabelsCmd(stdout, cfg))
	cmd.AddCommand(newBoardCmd(stdout, cfg))
	cmd.AddCommand(newCredentialsCmd(stdout, stderr, cfg))
	cmd.AddCommand(newConfigCmd(stdout, cfg))
	cmd.AddCommand(newStatsCmd(stdout, cfg))
	cmd.AddCommand(newVersionCmd(stdout))

	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _ = fmt.Fprintf(stdout, "kanbansync\nVersion: %s\nCommit:  %s\n", Version, Commit)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

// loadSettings resolves settings for cmd and applies the verbose flag.
func loadSettings(cmd *cobra.Command, cfg *Config) (*config.Settings, error) {
	settings, err := config.Resolve(config.Options{
		Flags:         cmd.Flags(),
		TokenFallback: cfg.credentialManager().Lookup(cmd.Context()),
	})
	if err != nil {
		return nil, err
	}
	utils.SetVerboseMode(settings.Verbose)
	for _, key := range settings.SortedSources() {
		utils.Debugf("setting %s from %s", key, settings.Sources[key])
	}
	return settings, nil
}

// openTracker returns the analytics tracker, or nil when analytics is off
// or the database cannot be opened. Old events are pruned on open.
func openTracker(settings *config.Settings) *analytics.Tracker {
	if !settings.AnalyticsEnabled {
		return nil
	}
	tracker, err := analytics.NewTracker(settings.AnalyticsPath, true)
	if err != nil {
		utils.Debugf("analytics disabled: %v", err)
		return nil
	}
	if n, err := tracker.Cleanup(settings.AnalyticsRetentionDays); err == nil && n > 0 {
		utils.Debugf("pruned %d analytics events", n)
	}
	return tracker
}

// newService connects to the board. The returned close function releases
// the client.
func newService(settings *config.Settings, cfg *Config) (*tasksync.Service, func() error, error) {
	if err := settings.RequireConnection(); err != nil {
		return nil, nil, err
	}

	tmpl, err := templates.Load(settings.TemplatesDir)
	if err != nil {
		return nil, nil, err
	}

	client, err := vikunja.New(vikunja.Config{
		BaseURL: settings.BaseURL,
		Token:   settings.Token,
		Timeout: settings.Timeout,
	})
	if err != nil {
		return nil, nil, err
	}

	codec := status.New()
	if cfg.Now != nil {
		codec.Now = cfg.Now
	}

	svc := tasksync.New(client, tasksync.Target{
		Project:   settings.Project,
		ProjectID: settings.ProjectID,
		View:      settings.View,
		ViewID:    settings.ViewID,
		Bucket:    settings.Bucket,
	}, tasksync.WithCodec(codec), tasksync.WithTemplates(tmpl))

	return svc, client.Close, nil
}

// runTask resolves settings, connects, runs fn under analytics tracking and
// prints its result as JSON.
func runTask(cmd *cobra.Command, cfg *Config, stdout io.Writer, fn func(ctx context.Context, svc *tasksync.Service) (interface{}, error)) error {
	settings, err := loadSettings(cmd, cfg)
	if err != nil {
		return err
	}

	tracker := openTracker(settings)
	cfg.atExit("analytics", tracker.Close)

	return tracker.TrackCommand(cmd.Name(), changedFlags(cmd), func() error {
		svc, closeFn, err := newService(settings, cfg)
		if err != nil {
			return err
		}
		cfg.atExit("vikunja client", closeFn)

		result, err := fn(cmd.Context(), svc)
		if err != nil {
			return err
		}
		return writeJSON(stdout, result)
	})
}

// writeJSON prints v indented without HTML escaping.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
