package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ragex/internal/usage"
)

var statsSinceFlag string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show persisted AI usage statistics",
	Long: `Aggregates the persisted usage history (.ragex/usage.db) by provider and
model. Requires usage.persist to be enabled in the configuration; live
in-process counters are available through the aiStats MCP tool instead.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().StringVar(&statsSinceFlag, "since", "",
		"Only include usage after this RFC3339 timestamp or duration (e.g. 24h)")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Usage.Persist {
		return fmt.Errorf("usage persistence is disabled; enable usage.persist in .ragex/config.json")
	}

	since, err := parseSince(statsSinceFlag)
	if err != nil {
		return err
	}

	store, err := usage.OpenStore(resolvePath(cfg.Usage.DBPath))
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.Summarize(since)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No usage recorded.")
		return nil
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summaries)
}

// parseSince accepts either an RFC3339 timestamp or a trailing duration.
func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return time.Now().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since value %q: use RFC3339 or a duration like 24h", s)
	}
	return t, nil
}
