// Package enrich implements the AI-enrichment consumers: validation-error
// explanation, refactor-risk commentary, and batch dead-code confidence
// refinement. Every consumer goes through the feature-aware cache and
// degrades to its unenriched input on failure; enrichment never aborts the
// enclosing analysis.
package enrich

import (
	"context"
	"log/slog"

	"ragex/internal/errors"
	"ragex/internal/features"
	"ragex/internal/promptctx"
	"ragex/internal/provider"
)

// UsageRecorder is the usage-tracking surface consumed by enrichment calls.
type UsageRecorder interface {
	RecordRequest(provider, model string, promptTokens, completionTokens int)
	CheckRateLimit(provider string) error
}

// Client bundles the collaborators shared by all enrichment consumers.
type Client struct {
	svc       *features.Service
	registry  *provider.Registry
	recorder  UsageRecorder
	assembler *promptctx.Assembler
	logger    *slog.Logger
}

// NewClient creates the shared enrichment client.
func NewClient(svc *features.Service, registry *provider.Registry, recorder UsageRecorder, assembler *promptctx.Assembler, logger *slog.Logger) *Client {
	return &Client{
		svc:       svc,
		registry:  registry,
		recorder:  recorder,
		assembler: assembler,
		logger:    logger,
	}
}

// generator returns the cache-miss path for a direct (non-RAG) provider
// call: resolve the provider, check the rate limit, generate, record usage.
func (c *Client) generator(prompt, system string, opts features.CallOptions) features.Generator {
	return func(ctx context.Context, fc features.FeatureConfig) (*provider.GeneratedResponse, error) {
		prov, provName, err := c.registry.Resolve(opts.Provider)
		if err != nil {
			return nil, err
		}
		if err := c.recorder.CheckRateLimit(provName); err != nil {
			return nil, err
		}

		callCtx := ctx
		if fc.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, fc.Timeout)
			defer cancel()
		}

		resp, err := prov.Generate(callCtx, prompt, provider.GenerateOptions{
			Model:        opts.Model,
			Temperature:  fc.Temperature,
			MaxTokens:    fc.MaxTokens,
			SystemPrompt: system,
			Timeout:      fc.Timeout,
		})
		if err != nil {
			if callCtx.Err() == context.DeadlineExceeded {
				return nil, errors.New(errors.ProviderTimeout, "enrichment call timed out", err)
			}
			return nil, err
		}
		c.recorder.RecordRequest(provName, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		return resp, nil
	}
}
