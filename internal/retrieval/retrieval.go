// Package retrieval defines the contract of the hybrid search collaborator
// consumed by the AI gateway. The ranking itself lives outside the gateway;
// this package only fixes the types the gateway depends on.
package retrieval

import "context"

// Strategy selects how the engine combines symbolic and semantic matching.
type Strategy string

const (
	// StrategyHybrid combines symbolic and semantic ranking
	StrategyHybrid Strategy = "hybrid"
	// StrategySemantic uses embedding similarity only
	StrategySemantic Strategy = "semantic"
	// StrategySymbolic uses the symbol index only
	StrategySymbolic Strategy = "symbolic"
)

// SearchOptions bound one search call.
type SearchOptions struct {
	Limit     int
	Threshold float64
	Strategy  Strategy
}

// Result is one retrieved snippet. Score is normalized to [0, 1].
type Result struct {
	NodeID   string  `json:"nodeId"`
	File     string  `json:"file"`
	Line     int     `json:"line"`
	Score    float64 `json:"score"`
	Language string  `json:"language"`
	Code     string  `json:"code"`
}

// Engine is the retrieval collaborator. An empty result slice is success
// with no matches, distinct from an error.
type Engine interface {
	Search(ctx context.Context, query string, opts SearchOptions) ([]Result, error)
}
