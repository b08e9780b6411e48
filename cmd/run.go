package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a guest bridged to the compositor",
	Long: `Connect to the compositor, publish every graphical guest console as a
display segment and run the guest loop until it shuts down.

The command exits with a non-zero status when the compositor can't be
reached. Failures on secondary displays are logged and the remaining
displays keep running.`,
	RunE: runBridge,
}

func init() {
	f := runCmd.Flags()
	f.String("conn", "", "Compositor socket path")
	f.String("name", "", "Guest name shown by the compositor")
	f.Int("limit", 0, "Maximum number of displays (1-4)")
	f.Bool("gl", false, "Enable GPU texture forwarding")
	f.Bool("direct-blit", false, "Copy native surfaces without repacking")
	f.String("input", "", "Input backend: uinput or log")
	f.Bool("monitor", false, "Serve the SSH status monitor")

	viper.BindPFlag("display.conn_path", f.Lookup("conn"))
	viper.BindPFlag("display.name", f.Lookup("name"))
	viper.BindPFlag("display.limit", f.Lookup("limit"))
	viper.BindPFlag("display.gl", f.Lookup("gl"))
	viper.BindPFlag("display.direct_blit", f.Lookup("direct-blit"))
	viper.BindPFlag("input.backend", f.Lookup("input"))
	viper.BindPFlag("monitor.enabled", f.Lookup("monitor"))

	rootCmd.AddCommand(runCmd)
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	srv, err := server.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create bridge: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting segbridge '%s' on %s", cfg.Display.Name, cfg.Display.ConnPath)
	if err := srv.Start(ctx); err != nil {
		srv.Stop()
		if errors.Is(err, bridge.ErrPrimaryUnavailable) {
			return fmt.Errorf("compositor unavailable at %s: %w", cfg.Display.ConnPath, err)
		}
		return err
	}
	defer srv.Stop()

	logger.Infof("Control socket: %s", srv.SocketPath())
	if cfg.Monitor.Enabled {
		logger.Infof("Status monitor: %s:%d", cfg.Monitor.BindAddress, cfg.Monitor.Port)
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	logger.Info("Guest stopped")
	return nil
}
