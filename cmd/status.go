package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/ipc"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of the running bridge",
	Long:  `Show the run state, keyboard LEDs and bound displays of a running bridge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := ipc.NewClient(config.Get().Control.SocketPath)
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		if statusWatch {
			// Log lines would tear the full-screen view
			logger.SetOutput(io.Discard)
			p := tea.NewProgram(ui.NewStatusModel(client.SendStatus, ui.DefaultStatusRefresh), tea.WithAltScreen())
			_, err := p.Run()
			return err
		}

		status, err := client.SendStatus()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), ui.WarningStyle.Render("Segbridge is not running"))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get bridge status: %w", err)
		}

		fmt.Fprint(cmd.OutOrStdout(), ui.RenderStatus(status))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Refresh the status every second")
	rootCmd.AddCommand(statusCmd)
}
