package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragex/internal/aicache"
	"ragex/internal/config"
	"ragex/internal/enrich"
	"ragex/internal/features"
	"ragex/internal/maintenance"
	"ragex/internal/mcp"
	"ragex/internal/pricing"
	"ragex/internal/promptctx"
	"ragex/internal/provider"
	"ragex/internal/rag"
	"ragex/internal/retrieval"
	"ragex/internal/usage"
	"ragex/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server over stdio",
	Long: `Starts the Model Context Protocol server on stdin/stdout. All AI gateway
tools (explainError, commentRefactor, refineDeadCode, ragQuery, ragExplain,
ragSuggest, and the stats/cache tools) are exposed through it.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	cache := aicache.New(aicache.Config{
		Enabled:    cfg.Cache.Enabled,
		DefaultTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		MaxSize:    cfg.Cache.MaxSize,
	}, logger)

	trackerOpts := []usage.Option{
		usage.WithLimits(limitsResolver(cfg)),
	}
	if cfg.Usage.Persist {
		store, err := usage.OpenStore(resolvePath(cfg.Usage.DBPath))
		if err != nil {
			return err
		}
		defer store.Close()
		trackerOpts = append(trackerOpts, usage.WithStore(store))
	}
	tracker := usage.NewTracker(logger, trackerOpts...)

	// Provider wire protocols are external to the gateway; real providers
	// register through the Registry API. Without one, the dry-run provider
	// answers deterministically.
	registry := provider.NewRegistry("dry-run", logger)
	registry.Register("dry-run", provider.NewDryRunProvider())

	svc := features.NewService(cfg, cache, logger)

	templates, err := rag.LoadTemplates(repoFlag)
	if err != nil {
		return err
	}

	// The retrieval engine and knowledge graph are external collaborators;
	// absent ones degrade grounding, never availability.
	var engine retrieval.Engine
	pipeline := rag.NewPipeline(engine, registry, svc, tracker, templates, rag.Options{
		SearchLimit:     cfg.Retrieval.Limit,
		SearchThreshold: cfg.Retrieval.Threshold,
		SearchStrategy:  retrieval.Strategy(cfg.Retrieval.Strategy),
		MaxContextChars: cfg.Retrieval.MaxContextChars,
	}, logger)

	assembler := promptctx.NewAssembler(nil, engine, logger)
	client := enrich.NewClient(svc, registry, tracker, assembler, logger)
	explainer := enrich.NewErrorExplainer(client)
	commentator := enrich.NewRefactorCommentator(client)
	refiner := enrich.NewDeadCodeRefiner(client,
		cfg.Batch.MaxConcurrent,
		time.Duration(cfg.Batch.ItemTimeoutMs)*time.Millisecond)

	janitor, err := maintenance.NewJanitor(cache, tracker,
		time.Duration(cfg.Cache.SweepIntervalSeconds)*time.Second, logger)
	if err != nil {
		return err
	}
	janitor.Start()
	defer janitor.Stop()

	server := mcp.NewServer(pipeline, explainer, commentator, refiner,
		tracker, cache, version.Info(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Ragex MCP server starting",
		"version", version.Info(),
		"cacheEnabled", cfg.Cache.Enabled,
		"aiEnabled", cfg.AI.Enabled)
	return server.Run(ctx, os.Stdin, os.Stdout)
}

// limitsResolver merges configured rate-limit overrides over the pricing
// table's per-provider quotas.
func limitsResolver(cfg *config.Config) func(string) usage.Limits {
	return func(provider string) usage.Limits {
		limits := pricing.ProviderLimits(provider)
		if cfg.RateLimit.MaxRequestsPerMinute > 0 {
			limits.MaxRequestsPerMinute = cfg.RateLimit.MaxRequestsPerMinute
		}
		if cfg.RateLimit.MaxRequestsPerHour > 0 {
			limits.MaxRequestsPerHour = cfg.RateLimit.MaxRequestsPerHour
		}
		if cfg.RateLimit.MaxTokensPerDay > 0 {
			limits.MaxTokensPerDay = cfg.RateLimit.MaxTokensPerDay
		}
		return limits
	}
}

// resolvePath makes a config-relative path absolute against the repo root.
func resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(repoFlag, path)
}
