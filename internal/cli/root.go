// Package cli implements the vigiauto command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	debug   bool

	rootCmd = &cobra.Command{
		Use:   "vigiauto",
		Short: "Multi-source used-car listing search and reconciliation",
		Long: `vigiauto runs one vehicle search across several French marketplaces,
deduplicates and scores the listings, and flags odometer and pricing
anomalies.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
)

// Execute parses config and runs the root command.
func Execute() error {
	_ = rootCmd.ParseFlags(os.Args[1:])
	if err := initConfig(); err != nil {
		return fmt.Errorf("initialize configuration: %w", err)
	}
	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./vigiauto.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newHistoryCommand())
}

// initConfig layers defaults, an optional config file and VIGIAUTO_*
// environment variables.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vigiauto")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/vigiauto")
	}

	viper.SetEnvPrefix("VIGIAUTO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; defaults and env cover everything.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			return err
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.fingerprint", "chrome")
	viper.SetDefault("fetch.respect_robots", true)
	viper.SetDefault("ratelimit.rps", 1.0)
	viper.SetDefault("ratelimit.jitter", 0.3)
	viper.SetDefault("render.enabled", false)
	viper.SetDefault("render.timeout", "20s")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("storage.backend", "none")
	viper.SetDefault("storage.dsn", "vigiauto.db")
	viper.SetDefault("metrics.port", 0)
}

// newLogger builds the process logger; --debug lowers the level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
