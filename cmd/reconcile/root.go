package reconcile

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/soundprediction/reconcile/pkg/config"
	"github.com/soundprediction/reconcile/pkg/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile: Temporal Knowledge Graph Tool",
		Long: `Reconcile ingests extracted facts into a temporally-aware knowledge graph.
It resolves entities against the existing graph and uses an oracle model to
decide when newly arrived facts supersede stored ones, closing their validity
windows instead of deleting them.

Complete documentation is available at https://github.com/soundprediction/reconcile`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize configuration
			initConfig()
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.reconcile.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	// Bind flags to viper
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		// Search config in home directory with name ".reconcile" (without extension).
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".reconcile")
	}

	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newLogHandler builds the terminal log handler from the log configuration.
func newLogHandler(cfg *config.Config) slog.Handler {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if strings.EqualFold(cfg.Log.Format, "json") {
		return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	return logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{Level: level})
}

// newLogger builds the process logger from the log configuration.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(newLogHandler(cfg))
}
