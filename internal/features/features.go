// Package features resolves per-feature AI configuration and provides the
// feature-aware fetch-or-generate primitive every enrichment call site uses.
package features

import (
	"time"

	"ragex/internal/config"
)

// FeatureID names one AI-enrichment call site.
type FeatureID string

const (
	// ValidationError explains analyzer/validation failures
	ValidationError FeatureID = "validation_error"
	// RefactorPreview comments on refactor risk before applying edits
	RefactorPreview FeatureID = "refactor_preview"
	// DeadCodeAnalysis refines dead-code confidence scores
	DeadCodeAnalysis FeatureID = "dead_code_analysis"
	// DuplicationAnalysis comments on duplicated code clusters
	DuplicationAnalysis FeatureID = "duplication_analysis"
	// DependencyInsights comments on module coupling
	DependencyInsights FeatureID = "dependency_insights"
	// ComplexityExplanation explains complexity hotspots
	ComplexityExplanation FeatureID = "complexity_explanation"
	// RagQuery answers free-form questions grounded in retrieved code
	RagQuery FeatureID = "rag_query"
	// RagExplain explains a piece of code grounded in retrieved context
	RagExplain FeatureID = "rag_explain"
	// RagSuggest suggests improvements grounded in retrieved context
	RagSuggest FeatureID = "rag_suggest"
)

// AllFeatures lists every known feature ID.
var AllFeatures = []FeatureID{
	ValidationError,
	RefactorPreview,
	DeadCodeAnalysis,
	DuplicationAnalysis,
	DependencyInsights,
	ComplexityExplanation,
	RagQuery,
	RagExplain,
	RagSuggest,
}

// FeatureConfig is the fully-resolved configuration for one call.
// Immutable once resolved.
type FeatureConfig struct {
	ID          FeatureID
	Enabled     bool
	Temperature float64
	MaxTokens   int
	CacheTTL    time.Duration
	Timeout     time.Duration
}

// CallOptions are per-call overrides, the highest tier of the three-tier
// precedence (global defaults < per-feature overrides < per-call options).
// Nil fields inherit.
type CallOptions struct {
	Enabled         *bool
	Temperature     *float64
	MaxTokens       *int
	CacheTTLSeconds *int
	TimeoutMs       *int
	// Provider overrides the configured default provider for this call.
	Provider string
	// Model overrides the provider's configured model for this call.
	Model string
}

// Resolve merges global defaults, per-feature overrides, and per-call
// options into one FeatureConfig. Later tiers win.
func Resolve(cfg *config.Config, id FeatureID, opts CallOptions) FeatureConfig {
	fc := FeatureConfig{
		ID:          id,
		Enabled:     cfg.AI.Enabled,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		CacheTTL:    time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		Timeout:     time.Duration(cfg.AI.TimeoutMs) * time.Millisecond,
	}

	if over, ok := cfg.Features[string(id)]; ok {
		if over.Enabled != nil {
			fc.Enabled = fc.Enabled && *over.Enabled
		}
		if over.Temperature != nil {
			fc.Temperature = *over.Temperature
		}
		if over.MaxTokens != nil {
			fc.MaxTokens = *over.MaxTokens
		}
		if over.CacheTTLSeconds != nil {
			fc.CacheTTL = time.Duration(*over.CacheTTLSeconds) * time.Second
		}
		if over.TimeoutMs != nil {
			fc.Timeout = time.Duration(*over.TimeoutMs) * time.Millisecond
		}
	}

	if opts.Enabled != nil {
		fc.Enabled = fc.Enabled && *opts.Enabled
	}
	if opts.Temperature != nil {
		fc.Temperature = *opts.Temperature
	}
	if opts.MaxTokens != nil {
		fc.MaxTokens = *opts.MaxTokens
	}
	if opts.CacheTTLSeconds != nil {
		fc.CacheTTL = time.Duration(*opts.CacheTTLSeconds) * time.Second
	}
	if opts.TimeoutMs != nil {
		fc.Timeout = time.Duration(*opts.TimeoutMs) * time.Millisecond
	}

	return fc
}

// Enabled reports whether the feature may run: the global AI flag, the
// per-feature flag, and the per-call override are combined so that any
// explicit false wins.
func Enabled(cfg *config.Config, id FeatureID, opts CallOptions) bool {
	return Resolve(cfg, id, opts).Enabled
}
