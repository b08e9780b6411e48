package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/bnema/segbridge/internal/ui"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage Segbridge configuration",
	Long:  `Manage Segbridge configuration and the status monitor key allowlist.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		printConfig(cmd.OutOrStdout(), config.Get())
		return nil
	},
}

func printConfig(w io.Writer, cfg *config.Config) {
	section := func(title string, kv ...any) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, ui.BoldStyle.Render("["+title+"]"))
		for i := 0; i+1 < len(kv); i += 2 {
			fmt.Fprintln(w, "  "+ui.FormatKeyValue(kv[i].(string), kv[i+1]))
		}
	}

	fmt.Fprintln(w, ui.FormatHeader("Current Configuration"))
	fmt.Fprintln(w, ui.FormatKeyValue("Config file", config.GetConfigPath()))

	d := cfg.Display
	section("display",
		"conn_path", d.ConnPath,
		"name", d.Name,
		"limit", d.Limit,
		"gl", d.GL,
		"direct_blit", d.DirectBlit,
		"refresh", fmt.Sprintf("%dms (hidden %dms)", d.RefreshIntervalMs, d.HiddenRefreshIntervalMs),
		"handshake", fmt.Sprintf("%dms", d.HandshakeTimeoutMs),
		"lock", fmt.Sprintf("%dms", d.LockTimeoutMs),
		"drain_cap", d.DrainCap,
	)
	b := cfg.Buffers
	section("buffers",
		"video", b.VideoCount,
		"audio", fmt.Sprintf("%d x %d bytes", b.AudioCount, b.AudioSize),
	)
	g := cfg.Guest
	text := "-"
	if len(g.TextConsoles) > 0 {
		text = strings.Trim(fmt.Sprint(g.TextConsoles), "[]")
	}
	section("guest",
		"consoles", g.Consoles,
		"text", text,
		"size", fmt.Sprintf("%dx%d", g.Width, g.Height),
	)
	in := cfg.Input
	section("input",
		"backend", in.Backend,
		"uinput_path", in.UInputPath,
		"device_name", in.DeviceName,
		"screen", fmt.Sprintf("%dx%d", in.ScreenWidth, in.ScreenHeight),
	)
	socket := cfg.Control.SocketPath
	if socket == "" {
		socket = "(per-user default)"
	}
	section("control", "socket_path", socket)
	m := cfg.Monitor
	section("monitor",
		"enabled", m.Enabled,
		"address", fmt.Sprintf("%s:%d", m.BindAddress, m.Port),
		"host_key", m.HostKeyPath,
		"keys", len(m.AllowedKeys),
	)
	c := cfg.Compositor
	section("compositor",
		"size", fmt.Sprintf("%dx%d", c.Width, c.Height),
		"args", c.Args,
		"max_segments", c.MaxSegments,
		"snapshots", c.SnapshotDir,
	)
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file with defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.GetConfigPath()
		if _, err := os.Stat(configPath); err == nil {
			force, _ := cmd.Flags().GetBool("force")
			if !force {
				logger.Infof("Configuration file already exists at: %s", configPath)
				logger.Info("Use --force to overwrite")
				return nil
			}
		}

		if err := config.Save(); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		return nil
	},
}

var configMonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Manage SSH keys allowed on the status monitor",
}

var configMonitorListCmd = &cobra.Command{
	Use:   "list",
	Short: "List allowed SSH key fingerprints",
	RunE: func(cmd *cobra.Command, args []string) error {
		keys := config.Get().Monitor.AllowedKeys
		if len(keys) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No SSH keys allowed, the monitor refuses every connection")
			return nil
		}
		for _, fp := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), fp)
		}
		return nil
	},
}

var configMonitorAddCmd = &cobra.Command{
	Use:   "add <fingerprint>",
	Short: "Allow an SSH key fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fp := args[0]
		if !strings.HasPrefix(fp, "SHA256:") {
			return fmt.Errorf("fingerprint must start with SHA256:")
		}
		if err := config.AddMonitorKey(fp); err != nil {
			return err
		}
		logger.Infof("Allowed %s", fp)
		return nil
	},
}

var configMonitorRemoveCmd = &cobra.Command{
	Use:   "remove <fingerprint>",
	Short: "Remove an SSH key fingerprint",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.RemoveMonitorKey(args[0]); err != nil {
			return err
		}
		logger.Infof("Removed %s", args[0])
		return nil
	},
}

func init() {
	configInitCmd.Flags().Bool("force", false, "Overwrite existing configuration")

	configMonitorCmd.AddCommand(configMonitorListCmd)
	configMonitorCmd.AddCommand(configMonitorAddCmd)
	configMonitorCmd.AddCommand(configMonitorRemoveCmd)

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configMonitorCmd)
	rootCmd.AddCommand(configCmd)
}
