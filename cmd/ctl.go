package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/segbridge/internal/bridge"
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/ipc"
	"github.com/bnema/segbridge/internal/logger"
	pb "github.com/bnema/segbridge/internal/proto"
	"github.com/bnema/segbridge/internal/ui"
	"github.com/spf13/cobra"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control the guest of a running bridge",
	Long: `Send run-state and keyboard LED commands to a running bridge.

Example usage in window manager configs:
  Hyprland: bind = $mainMod SHIFT, P, exec, segbridge ctl pause
  i3/Sway:  bindsym $mod+Shift+r exec segbridge ctl reset
`,
}

var ctlLEDCmd = &cobra.Command{
	Use:   "led <mask>",
	Short: "Set the guest keyboard LEDs",
	Long: `Set the guest keyboard LEDs. The mask is a number (scroll=1, num=2,
caps=4) or a comma separated list of lock names such as "caps,num".
Use "none" to clear every LED.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mask, err := parseLEDMask(args[0])
		if err != nil {
			return err
		}

		client, err := ipc.NewClient(config.Get().Control.SocketPath)
		if err != nil {
			return fmt.Errorf("failed to create IPC client: %w", err)
		}

		logger.Debugf("Sending LED command: %d", mask)
		status, err := client.SendLED(mask)
		if err != nil {
			return fmt.Errorf("failed to set LEDs: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.FormatResult(true, "LEDs", ui.FormatLED(status.LedState)))
		return nil
	},
}

func init() {
	for a := pb.RunStateActionPause; a <= pb.RunStateActionShutdown; a++ {
		ctlCmd.AddCommand(newRunStateCmd(a))
	}
	ctlCmd.AddCommand(ctlLEDCmd)
	rootCmd.AddCommand(ctlCmd)
}

var runStateHelp = map[pb.RunStateAction]string{
	pb.RunStateActionPause:    "Pause the guest, displays keep forwarding input",
	pb.RunStateActionResume:   "Resume a paused guest",
	pb.RunStateActionReset:    "Reset the guest and redraw every display",
	pb.RunStateActionShutdown: "Shut the guest down",
}

func newRunStateCmd(action pb.RunStateAction) *cobra.Command {
	return &cobra.Command{
		Use:   action.String(),
		Short: runStateHelp[action],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.NewClient(config.Get().Control.SocketPath)
			if err != nil {
				return fmt.Errorf("failed to create IPC client: %w", err)
			}

			logger.Debugf("Sending run-state command: %s", action)
			status, err := client.SendRunState(action)
			if err != nil {
				return fmt.Errorf("failed to %s guest: %w", action, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), ui.FormatResult(true, action.String(), "guest is "+status.State))
			return nil
		},
	}
}

// parseLEDMask accepts a number or a list of lock names
func parseLEDMask(s string) (int32, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty LED mask")
	}
	if s == "none" {
		return 0, nil
	}

	if n, err := strconv.ParseInt(s, 0, 32); err == nil {
		if n < 0 || n > bridge.LEDScroll|bridge.LEDNum|bridge.LEDCaps {
			return 0, fmt.Errorf("LED mask %d out of range 0-7", n)
		}
		return int32(n), nil
	}

	var mask int32
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(name) {
		case "scroll":
			mask |= bridge.LEDScroll
		case "num":
			mask |= bridge.LEDNum
		case "caps":
			mask |= bridge.LEDCaps
		default:
			return 0, fmt.Errorf("unknown LED %q (want scroll, num or caps)", name)
		}
	}
	return mask, nil
}
