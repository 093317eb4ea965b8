package features

import (
	"context"
	"encoding/json"
	"log/slog"

	"ragex/internal/aicache"
	"ragex/internal/config"
	"ragex/internal/errors"
	"ragex/internal/provider"
)

// Generator performs the actual provider call on a cache miss. It receives
// the resolved feature config so it can apply temperature, token budget,
// and timeout without re-resolving.
type Generator func(ctx context.Context, fc FeatureConfig) (*provider.GeneratedResponse, error)

// Service merges feature configuration into cache lookups and exposes the
// fetch-or-generate primitive.
type Service struct {
	cfg    *config.Config
	cache  *aicache.Cache
	logger *slog.Logger
}

// NewService creates a feature service over the given cache.
func NewService(cfg *config.Config, cache *aicache.Cache, logger *slog.Logger) *Service {
	return &Service{cfg: cfg, cache: cache, logger: logger}
}

// Config returns the underlying configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Resolve merges the three configuration tiers for a feature.
func (s *Service) Resolve(id FeatureID, opts CallOptions) FeatureConfig {
	return Resolve(s.cfg, id, opts)
}

// Enabled reports whether the feature may run for this call.
func (s *Service) Enabled(id FeatureID, opts CallOptions) bool {
	return Enabled(s.cfg, id, opts)
}

// Fetch looks up the cache and, on a miss, invokes generate. A successful
// generation is stored under the feature's resolved TTL before returning.
// Generator failures propagate uncached. A cache-store failure is logged
// and swallowed; the fresh value is still returned.
func (s *Service) Fetch(ctx context.Context, id FeatureID, query, contextStr string, opts CallOptions, generate Generator) (*provider.GeneratedResponse, error) {
	fc := s.Resolve(id, opts)
	if !fc.Enabled {
		return nil, errors.Newf(errors.FeatureDisabled, "feature %s is disabled", id)
	}

	k := aicache.KeyFields{
		Provider:    s.providerName(opts),
		Model:       opts.Model,
		Temperature: fc.Temperature,
		MaxTokens:   fc.MaxTokens,
	}

	if raw, ok := s.cache.Get(string(id), query, contextStr, k); ok {
		var resp provider.GeneratedResponse
		if err := json.Unmarshal([]byte(raw), &resp); err == nil {
			s.logger.Debug("AI response from cache", "feature", id)
			return &resp, nil
		}
		// An undecodable entry behaves like a miss.
		s.logger.Warn("Discarding undecodable cached response", "feature", id)
	}

	resp, err := generate(ctx, fc)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(resp); err != nil {
		s.logger.Warn("Failed to encode response for caching",
			"feature", id,
			"error", err.Error())
	} else {
		s.cache.Put(string(id), query, contextStr, string(raw), fc.CacheTTL, k)
	}

	return resp, nil
}

// FetchOrDefault is Fetch with generator failure converted into the given
// fallback value and a warning log. Used by enrichment paths that must
// degrade rather than fail.
func (s *Service) FetchOrDefault(ctx context.Context, id FeatureID, query, contextStr string, opts CallOptions, generate Generator, fallback *provider.GeneratedResponse) *provider.GeneratedResponse {
	resp, err := s.Fetch(ctx, id, query, contextStr, opts, generate)
	if err != nil {
		s.logger.Warn("AI enrichment degraded to fallback",
			"feature", id,
			"code", string(errors.CodeOf(err)),
			"error", err.Error())
		return fallback
	}
	return resp
}

// providerName resolves the provider participating in the cache key.
func (s *Service) providerName(opts CallOptions) string {
	if opts.Provider != "" {
		return opts.Provider
	}
	return s.cfg.AI.DefaultProvider
}
