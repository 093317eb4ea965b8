// Package pricing holds the static per-provider price and quota table.
// The table is loaded once from an embedded TOML file and is read-only
// afterwards, so it is safe for unsynchronized concurrent reads.
package pricing

import (
	_ "embed"
	"math"

	"github.com/BurntSushi/toml"
)

//go:embed pricing.toml
var pricingTOML string

// ModelPrice is the USD price per 1K tokens for one model.
type ModelPrice struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Limits are the rate-limit quotas for one provider.
type Limits struct {
	MaxRequestsPerMinute int   `toml:"maxRequestsPerMinute"`
	MaxRequestsPerHour   int   `toml:"maxRequestsPerHour"`
	MaxTokensPerDay      int64 `toml:"maxTokensPerDay"`
}

// providerEntry is one provider's section in pricing.toml.
type providerEntry struct {
	Limits
	Models map[string]ModelPrice `toml:"models"`
}

type table struct {
	Providers map[string]providerEntry `toml:"providers"`
}

var defaultTable table

func init() {
	if _, err := toml.Decode(pricingTOML, &defaultTable); err != nil {
		// The embedded table is part of the build; a decode failure is a bug.
		panic("pricing: invalid embedded pricing.toml: " + err.Error())
	}
}

// DefaultLimits are used for providers absent from the table.
var DefaultLimits = Limits{
	MaxRequestsPerMinute: 60,
	MaxRequestsPerHour:   1000,
	MaxTokensPerDay:      1000000,
}

// Price returns the per-1K-token prices for a provider/model pair.
// Unknown pairs return (0, 0).
func Price(provider, model string) ModelPrice {
	p, ok := defaultTable.Providers[provider]
	if !ok {
		return ModelPrice{}
	}
	return p.Models[model]
}

// ProviderLimits returns the rate-limit quotas for a provider,
// falling back to DefaultLimits for unknown providers.
func ProviderLimits(provider string) Limits {
	p, ok := defaultTable.Providers[provider]
	if !ok {
		return DefaultLimits
	}
	return p.Limits
}

// Cost computes the estimated USD cost of one request, rounded to six
// decimal places. Unknown provider/model pairs cost zero.
func Cost(provider, model string, promptTokens, completionTokens int) float64 {
	price := Price(provider, model)
	cost := float64(promptTokens)/1000*price.Input + float64(completionTokens)/1000*price.Output
	return math.Round(cost*1e6) / 1e6
}

// KnownProviders returns the provider names present in the table.
func KnownProviders() []string {
	names := make([]string, 0, len(defaultTable.Providers))
	for name := range defaultTable.Providers {
		names = append(names, name)
	}
	return names
}
