package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"ragex/internal/config"
	"ragex/internal/slogutil"
	"ragex/internal/version"
)

var (
	// repoFlag is the CLI --repo flag value
	repoFlag string
	// logLevelFlag overrides the configured log level
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ragex",
	Short: "Ragex - AI gateway for code intelligence",
	Long: `Ragex wraps rate-limited, cached, cost-tracked AI providers behind a
tool-invocation interface for code-intelligence features: error explanation,
refactor-risk commentary, dead-code confidence refinement, and
retrieval-augmented query, explain, and suggest.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("Ragex version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&repoFlag, "repo", ".",
		"Repository root containing the .ragex directory")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (overrides config)")
}

// loadConfig loads the configuration for the selected repository root.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(repoFlag)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr (or the configured
// file) so stdout stays free for the MCP transport. The returned closer is
// nil unless a log file was opened.
func newLogger(cfg *config.Config) (*slog.Logger, *os.File, error) {
	level := slogutil.LevelFromString(cfg.Logging.Level)
	if logLevelFlag != "" {
		level = slogutil.LevelFromString(logLevelFlag)
	}
	if cfg.Logging.File != "" {
		return slogutil.NewFileLogger(cfg.Logging.File, level)
	}
	return slogutil.NewLogger(os.Stderr, level), nil, nil
}
