package provider

import (
	"context"
	"testing"
	"time"

	"ragex/internal/errors"
	"ragex/internal/slogutil"
)

func TestRegistryResolve(t *testing.T) {
	reg := NewRegistry("default", slogutil.NewDiscardLogger())
	def := NewDryRunProvider()
	other := &DryRunProvider{Canned: "other"}
	reg.Register("default", def)
	reg.Register("other", other)

	t.Run("explicit name", func(t *testing.T) {
		p, name, err := reg.Resolve("other")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if name != "other" || p != Provider(other) {
			t.Errorf("resolved %q, want other", name)
		}
	})

	t.Run("empty name uses default", func(t *testing.T) {
		_, name, err := reg.Resolve("")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if name != "default" {
			t.Errorf("resolved %q, want default", name)
		}
	})

	t.Run("unknown name falls back to default", func(t *testing.T) {
		_, name, err := reg.Resolve("nonexistent")
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if name != "default" {
			t.Errorf("resolved %q, want default", name)
		}
	})
}

func TestRegistryNoDefault(t *testing.T) {
	reg := NewRegistry("missing", slogutil.NewDiscardLogger())
	_, _, err := reg.Resolve("also-missing")
	if !errors.IsCode(err, errors.UnknownProvider) {
		t.Errorf("expected UNKNOWN_PROVIDER, got %v", err)
	}
}

func TestDryRunProviderTimeout(t *testing.T) {
	p := NewDryRunProvider()

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := p.Generate(ctx, "prompt", GenerateOptions{})
	if !errors.IsCode(err, errors.ProviderTimeout) {
		t.Errorf("expected PROVIDER_TIMEOUT for expired context, got %v", err)
	}
}

func TestDryRunProviderGenerate(t *testing.T) {
	p := NewDryRunProvider()
	resp, err := p.Generate(context.Background(), "explain this", GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Content == "" {
		t.Error("expected non-empty content")
	}
	if resp.Model != "dry-run" {
		t.Errorf("model = %q, want dry-run", resp.Model)
	}
}
