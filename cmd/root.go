package cmd

import (
	"github.com/bnema/segbridge/internal/config"
	"github.com/bnema/segbridge/internal/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "segbridge",
		Short: "Segbridge - guest displays on shared-memory segments",
		Long: `Segbridge bridges the displays and input of a guest machine to an
external compositor. Each guest console is published as a shared-memory
segment and compositor input is fed back to the guest through uinput.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default is $HOME/.config/segbridge/segbridge.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	viper.BindPFlag("logging.log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig loads the configuration and applies the log level
func initConfig(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		config.SetConfigPath(configPath)
	}
	if err := config.Init(); err != nil {
		return err
	}

	if level := config.Get().Logging.LogLevel; level != "" {
		logger.SetLevel(level)
	}
	return nil
}
