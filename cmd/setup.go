package cmd

import (
	"fmt"
	"strings"

	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/ui"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactively write the Segbridge configuration",
	Long: `Ask for the compositor socket, guest name, display limit, rendering
options and input backend, then write the configuration file.`,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

// setupAnswers holds the values edited by the setup form
type setupAnswers struct {
	ConnPath   string
	Name       string
	Limit      int
	GL         bool
	DirectBlit bool
	Backend    string
	Monitor    bool
}

func answersFromConfig(cfg *config.Config) *setupAnswers {
	return &setupAnswers{
		ConnPath:   cfg.Display.ConnPath,
		Name:       cfg.Display.Name,
		Limit:      cfg.Display.Limit,
		GL:         cfg.Display.GL,
		DirectBlit: cfg.Display.DirectBlit,
		Backend:    cfg.Input.Backend,
		Monitor:    cfg.Monitor.Enabled,
	}
}

func newSetupForm(a *setupAnswers) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Compositor socket").
				Description("Path of the compositor control socket").
				Value(&a.ConnPath).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("socket path is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Guest name").
				Description("Shown by the compositor next to each display").
				Value(&a.Name),
			huh.NewSelect[int]().
				Title("Displays").
				Description("Maximum number of guest consoles to publish").
				Options(huh.NewOptions(1, 2, 3, 4)...).
				Value(&a.Limit),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("Forward GPU textures?").
				Value(&a.GL),
			huh.NewConfirm().
				Title("Copy native surfaces without repacking?").
				Value(&a.DirectBlit),
			huh.NewSelect[string]().
				Title("Input backend").
				Options(
					huh.NewOption("uinput virtual devices", "uinput"),
					huh.NewOption("log only", "log"),
				).
				Value(&a.Backend),
			huh.NewConfirm().
				Title("Serve the SSH status monitor?").
				Value(&a.Monitor),
		),
	)
}

// applySetup writes the answers into the configuration file
func applySetup(a *setupAnswers) error {
	cfg := config.Get()

	d := cfg.Display
	d.ConnPath = strings.TrimSpace(a.ConnPath)
	d.Name = strings.TrimSpace(a.Name)
	d.Limit = a.Limit
	d.GL = a.GL
	d.DirectBlit = a.DirectBlit
	if err := config.UpdateDisplay(d); err != nil {
		return err
	}

	in := cfg.Input
	in.Backend = a.Backend
	if err := config.UpdateInput(in); err != nil {
		return err
	}

	return config.SetMonitorEnabled(a.Monitor)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(ui.FormatHeader("Segbridge Setup"))

	answers := answersFromConfig(config.Get())
	if err := newSetupForm(answers).Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if err := applySetup(answers); err != nil {
		fmt.Println(ui.FormatResult(false, "Write configuration", err.Error()))
		return err
	}

	fmt.Println(ui.FormatResult(true, "Write configuration", config.GetConfigPath()))
	if answers.Monitor {
		fmt.Println(ui.FormatResult(true, "Status monitor", "allow keys with 'segbridge config monitor add'"))
	}
	return nil
}
