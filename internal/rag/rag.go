// Package rag orchestrates retrieval-augmented generation: retrieve grounding
// snippets, assemble a bounded context, render a prompt, call the provider
// through the feature-aware cache, and attach source attributions.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"ragex/internal/errors"
	"ragex/internal/features"
	"ragex/internal/pricing"
	"ragex/internal/provider"
	"ragex/internal/retrieval"
)

// truncationMarker is appended when the assembled context was cut at the
// character budget.
const truncationMarker = "\n... [context truncated]"

// Kind selects the prompt template and cache namespace for a request.
type Kind string

const (
	// KindQuery answers a free-form question about the codebase
	KindQuery Kind = "query"
	// KindExplain explains a piece of code
	KindExplain Kind = "explain"
	// KindSuggest suggests improvements
	KindSuggest Kind = "suggest"
)

// featureFor maps a request kind to its feature namespace.
func featureFor(kind Kind) features.FeatureID {
	switch kind {
	case KindExplain:
		return features.RagExplain
	case KindSuggest:
		return features.RagSuggest
	default:
		return features.RagQuery
	}
}

// Request is one RAG invocation.
type Request struct {
	Kind  Kind
	Query string
	// Opts are per-call overrides of the feature configuration.
	Opts features.CallOptions
	// DirectFallback allows an un-grounded provider call when retrieval
	// finds nothing, instead of failing with NO_RETRIEVAL_RESULTS.
	DirectFallback bool
}

// Source attributes part of a response to a retrieved snippet.
type Source struct {
	File   string  `json:"file"`
	Line   int     `json:"line"`
	NodeID string  `json:"nodeId"`
	Score  float64 `json:"score"`
}

// Response is the formatted pipeline result.
type Response struct {
	RequestID     string         `json:"requestId"`
	Content       string         `json:"content"`
	Provider      string         `json:"provider"`
	Model         string         `json:"model"`
	Sources       []Source       `json:"sources,omitempty"`
	Grounded      bool           `json:"grounded"`
	Usage         provider.Usage `json:"usage"`
	EstimatedCost float64        `json:"estimatedCost"`
	Elapsed       time.Duration  `json:"-"`
}

// Pipeline runs the Retrieve → BuildContext → BuildPrompt → Generate →
// FormatResponse state machine.
type Pipeline struct {
	engine    retrieval.Engine
	registry  *provider.Registry
	features  *features.Service
	templates *Templates
	logger    *slog.Logger

	// recorder is the usage tracker surface the pipeline needs; narrowed to
	// an interface so tests can observe calls.
	recorder UsageRecorder

	searchOpts      retrieval.SearchOptions
	maxContextChars int
}

// UsageRecorder is the usage-tracking surface consumed by the pipeline.
type UsageRecorder interface {
	RecordRequest(provider, model string, promptTokens, completionTokens int)
	CheckRateLimit(provider string) error
}

// Options configure a Pipeline.
type Options struct {
	SearchLimit     int
	SearchThreshold float64
	SearchStrategy  retrieval.Strategy
	MaxContextChars int
}

// NewPipeline creates a RAG pipeline.
func NewPipeline(engine retrieval.Engine, registry *provider.Registry, svc *features.Service, recorder UsageRecorder, templates *Templates, opts Options, logger *slog.Logger) *Pipeline {
	if opts.SearchLimit <= 0 {
		opts.SearchLimit = 5
	}
	if opts.SearchStrategy == "" {
		opts.SearchStrategy = retrieval.StrategyHybrid
	}
	if opts.MaxContextChars <= 0 {
		opts.MaxContextChars = 8000
	}
	if templates == nil {
		templates = DefaultTemplates()
	}
	return &Pipeline{
		engine:    engine,
		registry:  registry,
		features:  svc,
		templates: templates,
		recorder:  recorder,
		logger:    logger,
		searchOpts: retrieval.SearchOptions{
			Limit:     opts.SearchLimit,
			Threshold: opts.SearchThreshold,
			Strategy:  opts.SearchStrategy,
		},
		maxContextChars: opts.MaxContextChars,
	}
}

// Run executes the pipeline for one request. The provider call goes through
// the feature-aware cache, so a repeated request within the feature's TTL is
// answered without touching the provider or the rate limiter.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	id := featureFor(req.Kind)

	gen, err := p.features.Fetch(ctx, id, req.Query, string(req.Kind), req.Opts,
		func(ctx context.Context, fc features.FeatureConfig) (*provider.GeneratedResponse, error) {
			return p.generate(ctx, req, fc)
		})
	if err != nil {
		return nil, err
	}

	resp := p.formatResponse(req, gen)
	resp.Elapsed = time.Since(start)
	p.logger.Debug("RAG pipeline completed",
		"kind", string(req.Kind),
		"grounded", resp.Grounded,
		"sources", len(resp.Sources),
		"elapsedMs", resp.Elapsed.Milliseconds())
	return resp, nil
}

// generate is the cache-miss path: retrieve, build context, build prompt,
// call the provider, record usage.
func (p *Pipeline) generate(ctx context.Context, req Request, fc features.FeatureConfig) (*provider.GeneratedResponse, error) {
	results, err := p.retrieve(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && !req.DirectFallback {
		return nil, errors.Newf(errors.NoRetrievalResults,
			"no code context found for %q", req.Query)
	}

	contextStr, truncated := p.buildContext(results)
	system, user := p.templates.Render(req.Kind, contextStr, req.Query)

	prov, provName, err := p.registry.Resolve(req.Opts.Provider)
	if err != nil {
		return nil, err
	}
	if err := p.recorder.CheckRateLimit(provName); err != nil {
		return nil, err
	}

	callCtx := ctx
	if fc.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, fc.Timeout)
		defer cancel()
	}

	gen, err := prov.Generate(callCtx, user, provider.GenerateOptions{
		Model:        req.Opts.Model,
		Temperature:  fc.Temperature,
		MaxTokens:    fc.MaxTokens,
		SystemPrompt: system,
		Timeout:      fc.Timeout,
	})
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ProviderTimeout,
				fmt.Sprintf("provider %s timed out after %s", provName, fc.Timeout), err)
		}
		return nil, err
	}

	p.recorder.RecordRequest(provName, gen.Model, gen.Usage.PromptTokens, gen.Usage.CompletionTokens)

	// Attribution metadata rides inside the cached value so cache hits keep
	// their sources.
	if gen.Metadata == nil {
		gen.Metadata = make(map[string]string)
	}
	gen.Metadata["provider"] = provName
	gen.Metadata["grounded"] = fmt.Sprintf("%t", len(results) > 0)
	if truncated {
		gen.Metadata["contextTruncated"] = "true"
	}
	if len(results) > 0 {
		if raw, err := json.Marshal(sourcesFrom(results)); err == nil {
			gen.Metadata["sources"] = string(raw)
		}
	}
	return gen, nil
}

// retrieve runs the hybrid search. An empty result set is a distinguished
// success condition, not an error.
func (p *Pipeline) retrieve(ctx context.Context, query string) ([]retrieval.Result, error) {
	if p.engine == nil {
		return nil, nil
	}
	results, err := p.engine.Search(ctx, query, p.searchOpts)
	if err != nil {
		return nil, errors.New(errors.InternalError, "retrieval search failed", err)
	}
	return results, nil
}

// buildContext joins snippets up to the character budget, appending a
// truncation marker if cut. Snippet boundaries are preserved where possible.
func (p *Pipeline) buildContext(results []retrieval.Result) (string, bool) {
	if len(results) == 0 {
		return "", false
	}
	var b strings.Builder
	truncated := false
	for _, r := range results {
		section := fmt.Sprintf("// %s:%d (score %.2f)\n%s\n\n", r.File, r.Line, r.Score, r.Code)
		if b.Len()+len(section) > p.maxContextChars {
			remaining := p.maxContextChars - b.Len()
			if remaining > 0 {
				b.WriteString(cutAtRune(section, remaining))
			}
			truncated = true
			break
		}
		b.WriteString(section)
	}
	out := strings.TrimRight(b.String(), "\n")
	if truncated {
		out += truncationMarker
	}
	return out, truncated
}

// formatResponse attaches attribution and cost metadata to the generated
// content.
func (p *Pipeline) formatResponse(req Request, gen *provider.GeneratedResponse) *Response {
	resp := &Response{
		RequestID: uuid.NewString(),
		Content:   gen.Content,
		Provider:  gen.Metadata["provider"],
		Model:     gen.Model,
		Grounded:  gen.Metadata["grounded"] == "true",
		Usage:     gen.Usage,
	}
	if raw, ok := gen.Metadata["sources"]; ok {
		var sources []Source
		if err := json.Unmarshal([]byte(raw), &sources); err == nil {
			resp.Sources = sources
		}
	}
	resp.EstimatedCost = pricing.Cost(resp.Provider, resp.Model,
		gen.Usage.PromptTokens, gen.Usage.CompletionTokens)
	return resp
}

// cutAtRune cuts s at max bytes, backing up to a rune boundary so the cut
// never produces invalid UTF-8.
func cutAtRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

func sourcesFrom(results []retrieval.Result) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{File: r.File, Line: r.Line, NodeID: r.NodeID, Score: r.Score}
	}
	return out
}
