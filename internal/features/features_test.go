package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"ragex/internal/aicache"
	"ragex/internal/config"
	"ragex/internal/errors"
	"ragex/internal/provider"
	"ragex/internal/slogutil"
)

func boolPtr(b bool) *bool        { return &b }
func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

func newTestService(cfg *config.Config) *Service {
	cache := aicache.New(aicache.Config{
		Enabled:    cfg.Cache.Enabled,
		DefaultTTL: time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		MaxSize:    cfg.Cache.MaxSize,
	}, slogutil.NewDiscardLogger())
	return NewService(cfg, cache, slogutil.NewDiscardLogger())
}

func TestResolvePrecedence(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.Temperature = 0.3
	cfg.AI.MaxTokens = 1024
	cfg.Features = map[string]config.FeatureOverride{
		string(RagQuery): {
			Temperature: floatPtr(0.7),
			MaxTokens:   intPtr(2048),
		},
	}

	t.Run("global defaults", func(t *testing.T) {
		fc := Resolve(cfg, RagExplain, CallOptions{})
		if fc.Temperature != 0.3 || fc.MaxTokens != 1024 {
			t.Errorf("got temp=%v maxTokens=%d, want global 0.3/1024", fc.Temperature, fc.MaxTokens)
		}
	})

	t.Run("feature overrides global", func(t *testing.T) {
		fc := Resolve(cfg, RagQuery, CallOptions{})
		if fc.Temperature != 0.7 || fc.MaxTokens != 2048 {
			t.Errorf("got temp=%v maxTokens=%d, want feature 0.7/2048", fc.Temperature, fc.MaxTokens)
		}
	})

	t.Run("call overrides feature", func(t *testing.T) {
		fc := Resolve(cfg, RagQuery, CallOptions{Temperature: floatPtr(0.1), MaxTokens: intPtr(256)})
		if fc.Temperature != 0.1 || fc.MaxTokens != 256 {
			t.Errorf("got temp=%v maxTokens=%d, want call 0.1/256", fc.Temperature, fc.MaxTokens)
		}
	})
}

func TestEnabledAnyFalseWins(t *testing.T) {
	tests := []struct {
		name    string
		global  bool
		feature *bool
		call    *bool
		want    bool
	}{
		{"all true", true, boolPtr(true), boolPtr(true), true},
		{"global false", false, boolPtr(true), boolPtr(true), false},
		{"feature false", true, boolPtr(false), boolPtr(true), false},
		{"call false", true, boolPtr(true), boolPtr(false), false},
		{"unset inherits", true, nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			cfg.AI.Enabled = tt.global
			if tt.feature != nil {
				cfg.Features = map[string]config.FeatureOverride{
					string(RagQuery): {Enabled: tt.feature},
				}
			}
			got := Enabled(cfg, RagQuery, CallOptions{Enabled: tt.call})
			if got != tt.want {
				t.Errorf("Enabled = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFetchCachesOnSuccess(t *testing.T) {
	svc := newTestService(config.DefaultConfig())

	calls := 0
	gen := func(ctx context.Context, fc FeatureConfig) (*provider.GeneratedResponse, error) {
		calls++
		return &provider.GeneratedResponse{Content: "answer", Model: "m"}, nil
	}

	for i := 0; i < 3; i++ {
		resp, err := svc.Fetch(context.Background(), RagQuery, "q", "ctx", CallOptions{}, gen)
		if err != nil {
			t.Fatalf("Fetch failed: %v", err)
		}
		if resp.Content != "answer" {
			t.Errorf("content = %q, want answer", resp.Content)
		}
	}

	if calls != 1 {
		t.Errorf("generator invoked %d times, want 1 (cached afterwards)", calls)
	}
}

func TestFetchDoesNotCacheFailure(t *testing.T) {
	svc := newTestService(config.DefaultConfig())

	calls := 0
	gen := func(ctx context.Context, fc FeatureConfig) (*provider.GeneratedResponse, error) {
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("provider unavailable")
		}
		return &provider.GeneratedResponse{Content: "recovered"}, nil
	}

	if _, err := svc.Fetch(context.Background(), RagQuery, "q", "ctx", CallOptions{}, gen); err == nil {
		t.Fatal("expected first Fetch to fail")
	}

	resp, err := svc.Fetch(context.Background(), RagQuery, "q", "ctx", CallOptions{}, gen)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if resp.Content != "recovered" {
		t.Errorf("content = %q, want recovered", resp.Content)
	}
	if calls != 2 {
		t.Errorf("generator invoked %d times, want 2 (failure not cached)", calls)
	}
}

func TestFetchDisabledFeature(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.AI.Enabled = false
	svc := newTestService(cfg)

	_, err := svc.Fetch(context.Background(), RagQuery, "q", "ctx", CallOptions{},
		func(ctx context.Context, fc FeatureConfig) (*provider.GeneratedResponse, error) {
			t.Fatal("generator must not run for a disabled feature")
			return nil, nil
		})
	if !errors.IsCode(err, errors.FeatureDisabled) {
		t.Errorf("expected FEATURE_DISABLED, got %v", err)
	}
}

func TestFetchOrDefault(t *testing.T) {
	svc := newTestService(config.DefaultConfig())
	fallback := &provider.GeneratedResponse{Content: "fallback"}

	resp := svc.FetchOrDefault(context.Background(), RagQuery, "q", "ctx", CallOptions{},
		func(ctx context.Context, fc FeatureConfig) (*provider.GeneratedResponse, error) {
			return nil, fmt.Errorf("boom")
		}, fallback)
	if resp != fallback {
		t.Error("expected fallback on generator failure")
	}
}
