package cmd

import (
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kanbansync/internal/tui"
	"kanbansync/internal/utils"
)

const defaultBoardWidth = 120

func newBoardCmd(stdout io.Writer, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show the buckets and tasks of the kanban view",
		Long: "Print the view as bucket columns. With --interactive on a terminal a read-only\n" +
			"browser opens instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd, cfg)
			if err != nil {
				return err
			}
			svc, closeFn, err := newService(settings, cfg)
			if err != nil {
				return err
			}
			cfg.atExit("vikunja client", closeFn)

			interactive, _ := cmd.Flags().GetBool("interactive")
			width, _ := cmd.Flags().GetInt("width")
			tty, ttyWidth := terminal(stdout)

			if interactive {
				if !tty {
					return utils.ErrInvalidArg("--interactive needs a terminal on stdout")
				}
				title := fmt.Sprintf("%s / %s", settings.Project, settings.View)
				p := tea.NewProgram(tui.New(cmd.Context(), svc, title), tea.WithAltScreen(), tea.WithOutput(stdout), tea.WithContext(cmd.Context()))
				_, err := p.Run()
				return err
			}

			if width <= 0 {
				width = ttyWidth
			}
			snap, err := svc.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			_, err = io.WriteString(stdout, tui.RenderPlain(snap, width))
			return err
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolP("interactive", "i", false, "Open the interactive board browser")
	cmd.Flags().Int("width", 0, "Output width for the plain layout (default: terminal width or 120)")
	return cmd
}

// terminal reports whether w is a terminal and its width.
func terminal(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, defaultBoardWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return true, defaultBoardWidth
	}
	return true, width
}
