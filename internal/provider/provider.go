// Package provider defines the AI provider contract and the registry that
// resolves provider names to implementations. Providers are interchangeable
// behind this interface; the gateway never depends on a specific wire
// protocol.
package provider

import (
	"context"
	"time"
)

// GenerateOptions parameterize one generation call.
type GenerateOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	// SystemPrompt is prepended by providers that support a system role.
	SystemPrompt string
	// Timeout bounds the call. Zero means the caller's context governs.
	Timeout time.Duration
}

// Usage is the token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// GeneratedResponse is the unit returned by providers, stored in the cache,
// and handed to consumers.
type GeneratedResponse struct {
	Content  string            `json:"content"`
	Model    string            `json:"model"`
	Usage    Usage             `json:"usage"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Info describes a provider's identity and capabilities.
type Info struct {
	Name         string   `json:"name"`
	Models       []string `json:"models"`
	Capabilities []string `json:"capabilities"`
}

// Provider is the AI provider contract.
type Provider interface {
	// Generate produces a completion for the prompt. Implementations must
	// honor ctx cancellation so abandoned calls release their resources.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (*GeneratedResponse, error)
	// ValidateConfig reports whether the provider is usable as configured.
	ValidateConfig() error
	// Info returns the provider's identity and capabilities.
	Info() Info
}
