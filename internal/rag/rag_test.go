package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"ragex/internal/aicache"
	"ragex/internal/config"
	"ragex/internal/errors"
	"ragex/internal/features"
	"ragex/internal/provider"
	"ragex/internal/retrieval"
	"ragex/internal/slogutil"
)

type fakeEngine struct {
	results []retrieval.Result
	err     error
	calls   int
}

func (e *fakeEngine) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]retrieval.Result, error) {
	e.calls++
	return e.results, e.err
}

type fakeRecorder struct {
	recorded int
	checked  int
	limitErr error
}

func (r *fakeRecorder) RecordRequest(provider, model string, promptTokens, completionTokens int) {
	r.recorded++
}

func (r *fakeRecorder) CheckRateLimit(provider string) error {
	r.checked++
	return r.limitErr
}

func newTestPipeline(t *testing.T, engine retrieval.Engine, recorder UsageRecorder) *Pipeline {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	cfg := config.DefaultConfig()

	cache := aicache.New(aicache.DefaultConfig(), logger)
	svc := features.NewService(cfg, cache, logger)

	reg := provider.NewRegistry("ollama", logger)
	reg.Register("ollama", provider.NewDryRunProvider())

	return NewPipeline(engine, reg, svc, recorder, nil, Options{}, logger)
}

func someResults() []retrieval.Result {
	return []retrieval.Result{
		{NodeID: "n1", File: "cache.go", Line: 10, Score: 0.9, Code: "func Get() {}"},
		{NodeID: "n2", File: "store.go", Line: 20, Score: 0.7, Code: "func Put() {}"},
	}
}

func TestRunGroundedResponse(t *testing.T) {
	engine := &fakeEngine{results: someResults()}
	recorder := &fakeRecorder{}
	p := newTestPipeline(t, engine, recorder)

	resp, err := p.Run(context.Background(), Request{Kind: KindQuery, Query: "how does the cache work?"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !resp.Grounded {
		t.Error("expected grounded response")
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("sources = %d, want 2", len(resp.Sources))
	}
	if resp.Sources[0].File != "cache.go" || resp.Sources[0].Score != 0.9 {
		t.Errorf("first source = %+v", resp.Sources[0])
	}
	if resp.RequestID == "" {
		t.Error("expected a request ID")
	}
	if recorder.checked != 1 || recorder.recorded != 1 {
		t.Errorf("rate check/record = %d/%d, want 1/1", recorder.checked, recorder.recorded)
	}
}

func TestRunNoResultsIsDistinguished(t *testing.T) {
	p := newTestPipeline(t, &fakeEngine{}, &fakeRecorder{})

	_, err := p.Run(context.Background(), Request{Kind: KindQuery, Query: "nothing matches"})
	if !errors.IsCode(err, errors.NoRetrievalResults) {
		t.Errorf("expected NO_RETRIEVAL_RESULTS, got %v", err)
	}
}

func TestRunDirectFallbackWithoutContext(t *testing.T) {
	recorder := &fakeRecorder{}
	p := newTestPipeline(t, &fakeEngine{}, recorder)

	resp, err := p.Run(context.Background(), Request{
		Kind:           KindExplain,
		Query:          "explain the cache",
		DirectFallback: true,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if resp.Grounded {
		t.Error("fallback response must not claim grounding")
	}
	if len(resp.Sources) != 0 {
		t.Errorf("sources = %d, want 0", len(resp.Sources))
	}
	if resp.Content == "" {
		t.Error("expected non-empty content from direct call")
	}
}

func TestRunRetrievalErrorPropagates(t *testing.T) {
	p := newTestPipeline(t, &fakeEngine{err: fmt.Errorf("index offline")}, &fakeRecorder{})

	_, err := p.Run(context.Background(), Request{Kind: KindQuery, Query: "q"})
	if !errors.IsCode(err, errors.InternalError) {
		t.Errorf("expected INTERNAL_ERROR, got %v", err)
	}
}

func TestRunRateLimitShortCircuits(t *testing.T) {
	recorder := &fakeRecorder{limitErr: errors.Newf(errors.RateLimitMinute, "over limit")}
	p := newTestPipeline(t, &fakeEngine{results: someResults()}, recorder)

	_, err := p.Run(context.Background(), Request{Kind: KindQuery, Query: "q"})
	if !errors.IsCode(err, errors.RateLimitMinute) {
		t.Errorf("expected RATE_LIMIT_MINUTE, got %v", err)
	}
	if recorder.recorded != 0 {
		t.Error("usage must not be recorded for a rejected call")
	}
}

func TestRunCacheHitSkipsProvider(t *testing.T) {
	engine := &fakeEngine{results: someResults()}
	recorder := &fakeRecorder{}
	p := newTestPipeline(t, engine, recorder)

	req := Request{Kind: KindQuery, Query: "cached question"}
	first, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	second, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}

	if engine.calls != 1 || recorder.recorded != 1 {
		t.Errorf("retrieval/record calls = %d/%d, want 1/1 (second run cached)", engine.calls, recorder.recorded)
	}
	if second.Content != first.Content {
		t.Error("cached content should match the original")
	}
	if len(second.Sources) != len(first.Sources) {
		t.Error("cached response should keep its source attributions")
	}
	if second.RequestID == first.RequestID {
		t.Error("each response gets its own request ID")
	}
}

func TestBuildContextBudget(t *testing.T) {
	logger := slogutil.NewDiscardLogger()
	p := NewPipeline(nil, nil, nil, nil, nil, Options{MaxContextChars: 200}, logger)

	results := []retrieval.Result{
		{File: "a.go", Line: 1, Score: 1, Code: strings.Repeat("a", 150)},
		{File: "b.go", Line: 2, Score: 1, Code: strings.Repeat("b", 150)},
	}
	out, truncated := p.buildContext(results)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if !strings.HasSuffix(out, truncationMarker) {
		t.Error("expected truncation marker suffix")
	}
	if len(out) > 200+len(truncationMarker) {
		t.Errorf("context length %d exceeds budget", len(out))
	}
}

func TestBuildContextCutsAtRuneBoundary(t *testing.T) {
	logger := slogutil.NewDiscardLogger()

	// Multi-byte runes straddle every possible cut position; the truncated
	// context must still be valid UTF-8 at any budget.
	results := []retrieval.Result{
		{File: "i18n.go", Line: 1, Score: 1, Code: strings.Repeat("héllö wörld ", 50)},
	}
	for budget := 40; budget < 60; budget++ {
		p := NewPipeline(nil, nil, nil, nil, nil, Options{MaxContextChars: budget}, logger)
		out, truncated := p.buildContext(results)
		if !truncated {
			t.Fatalf("budget %d: expected truncation", budget)
		}
		if !utf8.ValidString(out) {
			t.Errorf("budget %d: truncated context is not valid UTF-8: %q", budget, out)
		}
	}
}

func TestBuildContextWithinBudget(t *testing.T) {
	logger := slogutil.NewDiscardLogger()
	p := NewPipeline(nil, nil, nil, nil, nil, Options{}, logger)

	out, truncated := p.buildContext(someResults())
	if truncated {
		t.Error("small context should not truncate")
	}
	if !strings.Contains(out, "cache.go:10") || !strings.Contains(out, "func Put() {}") {
		t.Errorf("context = %q", out)
	}
}

// slowProvider blocks until its context expires.
type slowProvider struct{}

func (slowProvider) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (*provider.GeneratedResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (slowProvider) ValidateConfig() error { return nil }
func (slowProvider) Info() provider.Info   { return provider.Info{Name: "slow"} }

func TestProviderTimeout(t *testing.T) {
	logger := slogutil.NewDiscardLogger()
	cfg := config.DefaultConfig()
	cache := aicache.New(aicache.DefaultConfig(), logger)
	svc := features.NewService(cfg, cache, logger)
	reg := provider.NewRegistry("slow", logger)
	reg.Register("slow", slowProvider{})
	p := NewPipeline(&fakeEngine{results: someResults()}, reg, svc, &fakeRecorder{}, nil, Options{}, logger)

	timeout := 10
	_, err := p.Run(context.Background(), Request{
		Kind:  KindQuery,
		Query: "slow question",
		Opts:  features.CallOptions{TimeoutMs: &timeout},
	})
	if !errors.IsCode(err, errors.ProviderTimeout) {
		t.Errorf("expected PROVIDER_TIMEOUT, got %v", err)
	}
}

func TestLoadTemplatesOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".ragex"), 0755); err != nil {
		t.Fatal(err)
	}
	override := "query:\n  system: custom system prompt\n"
	if err := os.WriteFile(filepath.Join(dir, ".ragex", "prompts.yaml"), []byte(override), 0644); err != nil {
		t.Fatal(err)
	}

	tpl, err := LoadTemplates(dir)
	if err != nil {
		t.Fatalf("LoadTemplates failed: %v", err)
	}

	system, user := tpl.Render(KindQuery, "ctx", "q")
	if system != "custom system prompt" {
		t.Errorf("system = %q", system)
	}
	if !strings.Contains(user, "Question: q") {
		t.Errorf("user template should keep its default: %q", user)
	}

	// Kinds without overrides keep their defaults.
	system, _ = tpl.Render(KindSuggest, "ctx", "q")
	if !strings.Contains(system, "suggesting improvements") {
		t.Errorf("suggest system = %q", system)
	}
}

func TestLoadTemplatesMissingFile(t *testing.T) {
	tpl, err := LoadTemplates(t.TempDir())
	if err != nil {
		t.Fatalf("LoadTemplates failed: %v", err)
	}
	system, _ := tpl.Render(KindQuery, "", "q")
	if system == "" {
		t.Error("expected default system prompt")
	}
}
