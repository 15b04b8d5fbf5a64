package cmd

import (
	"context"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"kanbansync/internal/labels"
	"kanbansync/internal/resolver"
	"kanbansync/internal/tasksync"
)

// addSelectorFlags registers the task lookup flags shared by the task
// commands.
func addSelectorFlags(cmd *cobra.Command) {
	cmd.Flags().Int64("task-id", 0, "Task id, skips the lookup")
	cmd.Flags().String("pr-number", "", "Pull request number (matches label pr-N or title prefix [PR-N])")
	cmd.Flags().String("branch", "", "Branch name (matches [branch:NAME] in title or description)")
	cmd.Flags().String("title", "", "Task title (matched only without --pr-number and --branch)")
}

func selectorFromFlags(cmd *cobra.Command) tasksync.Selector {
	taskID, _ := cmd.Flags().GetInt64("task-id")
	pr, _ := cmd.Flags().GetString("pr-number")
	branch, _ := cmd.Flags().GetString("branch")
	title, _ := cmd.Flags().GetString("title")
	return tasksync.Selector{
		TaskID: taskID,
		Hint:   resolver.Hint{PRNumber: pr, Branch: branch, Title: title},
	}
}

// optionalString returns nil for flags that were not given.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}

// changedFlags lists the names of flags given on the command line, for
// analytics. Values are never recorded.
func changedFlags(cmd *cobra.Command) []string {
	var names []string
	cmd.Flags().Visit(func(f *pflag.Flag) {
		names = append(names, "--"+f.Name)
	})
	sort.Strings(names)
	return names
}

func newEnsureTaskCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ensure-task",
		Short: "Find the task for a unit of work or create it",
		Long: "Find a task by --task-id, --pr-number, --branch or --title. When nothing matches a new\n" +
			"task is created in --bucket with a managed description built from the template.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, _ := cmd.Flags().GetString("bucket")
			prURL, _ := cmd.Flags().GetString("pr-url")
			rawLabels, _ := cmd.Flags().GetString("labels")
			req := tasksync.EnsureTaskRequest{
				Selector:     selectorFromFlags(cmd),
				Description:  optionalString(cmd, "description"),
				Goal:         optionalString(cmd, "goal"),
				Requirements: optionalString(cmd, "requirements"),
				Solution:     optionalString(cmd, "solution"),
				Definition:   optionalString(cmd, "definition"),
				Bucket:       bucket,
				PRURL:        prURL,
				Labels:       labels.ParseList(rawLabels),
			}
			return runTask(cmd, cfg, stdout, func(ctx context.Context, svc *tasksync.Service) (interface{}, error) {
				return svc.EnsureTask(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addSelectorFlags(cmd)
	cmd.Flags().String("description", "", "Full task description (HTML); replaces the template")
	cmd.Flags().String("goal", "", "Goal section text")
	cmd.Flags().String("requirements", "", "Requirements section text")
	cmd.Flags().String("solution", "", "Solution section text")
	cmd.Flags().String("definition", "", "Definition of done section text")
	cmd.Flags().String("bucket", "", "Bucket for a new task (default from VIKUNJA_BUCKET_NAME or \"Backlog\")")
	cmd.Flags().String("pr-url", "", "Pull request URL, posted as a comment on a new task")
	cmd.Flags().String("labels", "", "Comma-separated labels to add to a new task")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func newProgressUpdateCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress-update",
		Short: "Post a progress comment and update percent done",
		Long: "Post a progress comment, set percent_done to done/total and, when the description is\n" +
			"managed, rewrite its status block.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, _ := cmd.Flags().GetInt("done")
			total, _ := cmd.Flags().GetInt("total")
			req := tasksync.ProgressRequest{
				Selector:   selectorFromFlags(cmd),
				Done:       done,
				Total:      total,
				Summary:    optionalString(cmd, "summary"),
				Completed:  optionalString(cmd, "completed"),
				InProgress: optionalString(cmd, "in-progress"),
				Next:       optionalString(cmd, "next"),
				Blockers:   optionalString(cmd, "blockers"),
			}
			return runTask(cmd, cfg, stdout, func(ctx context.Context, svc *tasksync.Service) (interface{}, error) {
				return svc.ProgressUpdate(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addSelectorFlags(cmd)
	cmd.Flags().Int("done", 0, "Completed steps")
	cmd.Flags().Int("total", 0, "Total steps")
	cmd.Flags().String("summary", "", "Summary text (lines starting with - or * become a list)")
	cmd.Flags().String("completed", "", "Completed work")
	cmd.Flags().String("in-progress", "", "Work in progress")
	cmd.Flags().String("next", "", "Next steps")
	cmd.Flags().String("blockers", "", "Blockers")
	_ = cmd.MarkFlagRequired("done")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}

func newLinkPRCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link-pr",
		Short: "Link a pull request to a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prURL, _ := cmd.Flags().GetString("pr-url")
			req := tasksync.LinkPRRequest{Selector: selectorFromFlags(cmd), PRURL: prURL}
			return runTask(cmd, cfg, stdout, func(ctx context.Context, svc *tasksync.Service) (interface{}, error) {
				return svc.LinkPR(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addSelectorFlags(cmd)
	cmd.Flags().String("pr-url", "", "Pull request URL")
	return cmd
}

func newMoveTaskCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "move-task",
		Short: "Move a task to another bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, _ := cmd.Flags().GetString("to")
			req := tasksync.MoveRequest{Selector: selectorFromFlags(cmd), To: to}
			return runTask(cmd, cfg, stdout, func(ctx context.Context, svc *tasksync.Service) (interface{}, error) {
				return svc.MoveTask(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addSelectorFlags(cmd)
	cmd.Flags().String("to", "", "Target bucket name")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newLabelsCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Add, remove or replace task labels",
		Long: "Edit the labels of a task. --add attaches missing labels (creating them when needed),\n" +
			"--remove detaches attached ones and --replace sets the exact label set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			add, _ := cmd.Flags().GetString("add")
			remove, _ := cmd.Flags().GetString("remove")
			replace, _ := cmd.Flags().GetString("replace")
			req := tasksync.LabelsRequest{
				Selector: selectorFromFlags(cmd),
				Add:      labels.ParseList(add),
				Remove:   labels.ParseList(remove),
				Replace:  labels.ParseList(replace),
			}
			return runTask(cmd, cfg, stdout, func(ctx context.Context, svc *tasksync.Service) (interface{}, error) {
				return svc.Labels(ctx, req)
			})
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addSelectorFlags(cmd)
	cmd.Flags().String("add", "", "Comma-separated labels to add")
	cmd.Flags().String("remove", "", "Comma-separated labels to remove")
	cmd.Flags().String("replace", "", "Comma-separated labels that replace all current labels")
	return cmd
}
