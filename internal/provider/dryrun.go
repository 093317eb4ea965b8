package provider

import (
	"context"
	"fmt"

	"ragex/internal/errors"
)

// DryRunProvider returns deterministic placeholder responses without any
// network access. It is registered when no real provider is configured and
// is the default in tests.
type DryRunProvider struct {
	// Canned, when non-empty, is returned verbatim instead of the
	// generated placeholder.
	Canned string
}

// NewDryRunProvider creates a dry-run provider.
func NewDryRunProvider() *DryRunProvider {
	return &DryRunProvider{}
}

// Generate returns a placeholder completion. It honors ctx cancellation so
// callers can exercise timeout paths against it.
func (p *DryRunProvider) Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GeneratedResponse, error) {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ProviderTimeout, "dry-run generation cancelled", ctx.Err())
		}
		return nil, errors.New(errors.ProviderError, "dry-run generation cancelled", ctx.Err())
	default:
	}

	content := p.Canned
	if content == "" {
		content = fmt.Sprintf("[dry-run response for %d-character prompt]", len(prompt))
	}
	return &GeneratedResponse{
		Content: content,
		Model:   "dry-run",
		Usage: Usage{
			PromptTokens:     len(prompt) / 4,
			CompletionTokens: len(content) / 4,
		},
		Metadata: map[string]string{"dryRun": "true"},
	}, nil
}

// ValidateConfig always succeeds; there is nothing to configure.
func (p *DryRunProvider) ValidateConfig() error {
	return nil
}

// Info identifies the dry-run provider.
func (p *DryRunProvider) Info() Info {
	return Info{
		Name:         "dry-run",
		Models:       []string{"dry-run"},
		Capabilities: []string{"generate"},
	}
}
