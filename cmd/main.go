package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fatalwatch/internal/config"
	"fatalwatch/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "fatalwatch",
	Short:         "Ship FATAL events from database logs into a sink",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "YAML config file, applied over environment variables")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotated file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig layers environment, the --config file and explicitly set
// flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Load()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile, _ = cmd.Flags().GetString("log-file")
	}
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	logger.Init(logger.Options{
		Prod:       cfg.LogMode == "prod",
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  100,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	})
}
