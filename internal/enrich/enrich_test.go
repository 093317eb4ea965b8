package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"ragex/internal/aicache"
	"ragex/internal/config"
	"ragex/internal/features"
	"ragex/internal/knowledge"
	"ragex/internal/promptctx"
	"ragex/internal/provider"
	"ragex/internal/slogutil"
)

type nopRecorder struct{}

func (nopRecorder) RecordRequest(provider, model string, promptTokens, completionTokens int) {}
func (nopRecorder) CheckRateLimit(provider string) error { return nil }

// scriptedProvider returns canned content, optionally failing or stalling.
type scriptedProvider struct {
	content string
	err     error
	delay   time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (p *scriptedProvider) Generate(ctx context.Context, prompt string, opts provider.GenerateOptions) (*provider.GeneratedResponse, error) {
	cur := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		max := p.maxInFlight.Load()
		if cur <= max || p.maxInFlight.CompareAndSwap(max, cur) {
			break
		}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &provider.GeneratedResponse{Content: p.content, Model: "scripted"}, nil
}

func (p *scriptedProvider) ValidateConfig() error { return nil }
func (p *scriptedProvider) Info() provider.Info   { return provider.Info{Name: "scripted"} }

func newTestClient(t *testing.T, p provider.Provider) *Client {
	t.Helper()
	logger := slogutil.NewDiscardLogger()
	cfg := config.DefaultConfig()
	cfg.AI.DefaultProvider = "scripted"

	cache := aicache.New(aicache.DefaultConfig(), logger)
	svc := features.NewService(cfg, cache, logger)

	reg := provider.NewRegistry("scripted", logger)
	reg.Register("scripted", p)

	assembler := promptctx.NewAssembler(nil, nil, logger)
	return NewClient(svc, reg, nopRecorder{}, assembler, logger)
}

func TestExplainParsesLabels(t *testing.T) {
	p := &scriptedProvider{content: "SUMMARY: the field is unexported.\nCAUSE: JSON decoding needs exported fields.\nFIX: capitalize the field name."}
	explainer := NewErrorExplainer(newTestClient(t, p))

	exp := explainer.Explain(context.Background(), "field not decoded", "user.go", 12, "type user struct{ name string }", features.CallOptions{})
	if exp.Degraded {
		t.Fatal("unexpected degraded explanation")
	}
	if exp.Summary != "the field is unexported." {
		t.Errorf("Summary = %q", exp.Summary)
	}
	if exp.Fix != "capitalize the field name." {
		t.Errorf("Fix = %q", exp.Fix)
	}
}

func TestExplainDegradesOnProviderFailure(t *testing.T) {
	p := &scriptedProvider{err: fmt.Errorf("connection refused")}
	explainer := NewErrorExplainer(newTestClient(t, p))

	exp := explainer.Explain(context.Background(), "syntax error near EOF", "", 0, "", features.CallOptions{})
	if !exp.Degraded {
		t.Fatal("expected degraded explanation")
	}
	if exp.Summary != "syntax error near EOF" {
		t.Errorf("degraded summary should carry the original message, got %q", exp.Summary)
	}
}

func TestExplainDisabledFeature(t *testing.T) {
	p := &scriptedProvider{content: "SUMMARY: should never be produced"}
	client := newTestClient(t, p)
	client.svc.Config().AI.Enabled = false
	explainer := NewErrorExplainer(client)

	exp := explainer.Explain(context.Background(), "some error", "", 0, "", features.CallOptions{})
	if !exp.Degraded {
		t.Error("disabled feature must yield a degraded explanation")
	}
	if p.maxInFlight.Load() != 0 {
		t.Error("provider must not be called when the feature is disabled")
	}
}

func TestCommentNormalizesRisk(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"high", "SUMMARY: s\nRISK: quite HIGH overall\nRECOMMENDATIONS: r", "high"},
		{"low", "SUMMARY: s\nRISK: low\nRECOMMENDATIONS: r", "low"},
		{"free text", "SUMMARY: s\nRISK: hard to say\nRECOMMENDATIONS: r", "medium"},
		{"label-free", "the model rambled with no structure", "medium"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commentator := NewRefactorCommentator(newTestClient(t, &scriptedProvider{content: tt.content}))
			com := commentator.Comment(context.Background(), "rename",
				knowledge.FunctionRef{ID: "f1", Name: "oldName"}, "", features.CallOptions{})
			if com.Degraded {
				t.Fatal("unexpected degraded commentary")
			}
			if com.Risk != tt.want {
				t.Errorf("Risk = %q, want %q", com.Risk, tt.want)
			}
		})
	}
}

func refs(n int) []Candidate {
	out := make([]Candidate, n)
	for i := range out {
		out[i] = Candidate{
			Ref:        knowledge.FunctionRef{ID: fmt.Sprintf("f%d", i), Name: fmt.Sprintf("fn%d", i)},
			Confidence: 0.5,
		}
	}
	return out
}

func TestRefineBatch(t *testing.T) {
	p := &scriptedProvider{content: "ASSESSMENT: likely dead\nREASONING: no callers.\nCONFIDENCE: 0.9"}
	refiner := NewDeadCodeRefiner(newTestClient(t, p), 3, time.Second)

	out := refiner.Refine(context.Background(), refs(4), features.CallOptions{})
	if len(out) != 4 {
		t.Fatalf("len = %d, want 4", len(out))
	}
	for i, c := range out {
		if !c.Refined {
			t.Errorf("candidate %d not refined", i)
		}
		if c.Confidence != 0.9 {
			t.Errorf("candidate %d confidence = %v, want 0.9", i, c.Confidence)
		}
		if c.Ref.ID != fmt.Sprintf("f%d", i) {
			t.Errorf("order not preserved at %d: %s", i, c.Ref.ID)
		}
	}
}

func TestRefineIsolatesFailures(t *testing.T) {
	p := &scriptedProvider{err: fmt.Errorf("provider down")}
	refiner := NewDeadCodeRefiner(newTestClient(t, p), 3, time.Second)

	out := refiner.Refine(context.Background(), refs(3), features.CallOptions{})
	for i, c := range out {
		if c.Refined {
			t.Errorf("candidate %d should keep its original value", i)
		}
		if c.Confidence != 0.5 {
			t.Errorf("candidate %d confidence = %v, want original 0.5", i, c.Confidence)
		}
	}
}

func TestRefineTimeoutKeepsOriginals(t *testing.T) {
	p := &scriptedProvider{content: "CONFIDENCE: 0.9", delay: time.Second}
	refiner := NewDeadCodeRefiner(newTestClient(t, p), 3, 20*time.Millisecond)

	start := time.Now()
	out := refiner.Refine(context.Background(), refs(3), features.CallOptions{})
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("batch should be bounded by perItem x N, took %s", elapsed)
	}
	for i, c := range out {
		if c.Refined {
			t.Errorf("timed-out candidate %d should keep its original value", i)
		}
	}
}

func TestRefineConcurrencyBound(t *testing.T) {
	p := &scriptedProvider{content: "CONFIDENCE: 0.8", delay: 30 * time.Millisecond}
	refiner := NewDeadCodeRefiner(newTestClient(t, p), 2, time.Second)

	refiner.Refine(context.Background(), refs(6), features.CallOptions{})
	if max := p.maxInFlight.Load(); max > 2 {
		t.Errorf("observed %d concurrent calls, want at most 2", max)
	}
}

func TestRefineDisabledFeature(t *testing.T) {
	p := &scriptedProvider{content: "CONFIDENCE: 0.9"}
	client := newTestClient(t, p)
	client.svc.Config().AI.Enabled = false
	refiner := NewDeadCodeRefiner(client, 3, time.Second)

	out := refiner.Refine(context.Background(), refs(2), features.CallOptions{})
	for i, c := range out {
		if c.Refined {
			t.Errorf("candidate %d refined while disabled", i)
		}
	}
	if p.maxInFlight.Load() != 0 {
		t.Error("provider must not be called when the feature is disabled")
	}
}
