package mcp

import (
	"context"
	"encoding/json"

	"ragex/internal/enrich"
	"ragex/internal/features"
	"ragex/internal/knowledge"
	"ragex/internal/rag"
)

// Tool argument structs.

type explainErrorArgs struct {
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Code    string `json:"code,omitempty"`
}

type commentRefactorArgs struct {
	Operation    string `json:"operation"`
	FunctionID   string `json:"functionId"`
	FunctionName string `json:"functionName,omitempty"`
	File         string `json:"file,omitempty"`
	Line         int    `json:"line,omitempty"`
	Diff         string `json:"diff,omitempty"`
}

type deadCodeCandidateArgs struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	File       string  `json:"file,omitempty"`
	Line       int     `json:"line,omitempty"`
	Confidence float64 `json:"confidence"`
}

type refineDeadCodeArgs struct {
	Candidates []deadCodeCandidateArgs `json:"candidates"`
}

type ragArgs struct {
	Query          string `json:"query"`
	DirectFallback bool   `json:"directFallback,omitempty"`
}

// toolHandler handles one tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"explainError":    handleExplainError,
	"commentRefactor": handleCommentRefactor,
	"refineDeadCode":  handleRefineDeadCode,
	"ragQuery":        handleRagQuery,
	"ragExplain":      handleRagExplain,
	"ragSuggest":      handleRagSuggest,
	"aiStats":         handleAIStats,
	"cacheStats":      handleCacheStats,
	"resetAiStats":    handleResetAIStats,
	"clearCache":      handleClearCache,
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "explainError",
		Description: "Explain a validation or analyzer error with a summary, cause, and suggested fix.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]any{
				"message": map[string]any{"type": "string", "description": "The raw error message"},
				"file":    map[string]any{"type": "string", "description": "File where the error occurred (optional)"},
				"line":    map[string]any{"type": "integer", "description": "Line number (optional)"},
				"code":    map[string]any{"type": "string", "description": "Surrounding code snippet (optional)"},
			},
		},
	},
	{
		Name:        "commentRefactor",
		Description: "Assess the risk of a proposed refactoring before it is applied.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"operation", "functionId"},
			"properties": map[string]any{
				"operation":    map[string]any{"type": "string", "description": "Refactoring operation, e.g. rename or extract"},
				"functionId":   map[string]any{"type": "string", "description": "Graph ID of the target function"},
				"functionName": map[string]any{"type": "string"},
				"file":         map[string]any{"type": "string"},
				"line":         map[string]any{"type": "integer"},
				"diff":         map[string]any{"type": "string", "description": "Proposed change as a unified diff (optional)"},
			},
		},
	},
	{
		Name:        "refineDeadCode",
		Description: "Refine confidence scores for dead-code candidates using call-graph evidence. Items that cannot be refined keep their original confidence.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"candidates"},
			"properties": map[string]any{
				"candidates": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []string{"id", "name", "confidence"},
						"properties": map[string]any{
							"id":         map[string]any{"type": "string"},
							"name":       map[string]any{"type": "string"},
							"file":       map[string]any{"type": "string"},
							"line":       map[string]any{"type": "integer"},
							"confidence": map[string]any{"type": "number"},
						},
					},
				},
			},
		},
	},
	{
		Name:        "ragQuery",
		Description: "Answer a question about the codebase, grounded in retrieved code snippets.",
		InputSchema: ragSchema("The question to answer"),
	},
	{
		Name:        "ragExplain",
		Description: "Explain code or a concept in the codebase, grounded in retrieved snippets.",
		InputSchema: ragSchema("What to explain"),
	},
	{
		Name:        "ragSuggest",
		Description: "Suggest improvements for part of the codebase, grounded in retrieved snippets.",
		InputSchema: ragSchema("What to improve"),
	},
	{
		Name:        "aiStats",
		Description: "Show cumulative AI usage statistics per provider and model.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "cacheStats",
		Description: "Show AI response cache statistics (hits, misses, evictions, hit rate).",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "resetAiStats",
		Description: "Reset cumulative AI usage statistics.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "clearCache",
		Description: "Clear the AI response cache.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

func ragSchema(queryDesc string) map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"query"},
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": queryDesc},
			"directFallback": map[string]any{
				"type":        "boolean",
				"description": "Answer without code context when retrieval finds nothing",
			},
		},
	}
}

func handleExplainError(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	var a explainErrorArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Message == "" {
		return errorResult("explainError requires a message argument")
	}
	exp := s.explainer.Explain(ctx, a.Message, a.File, a.Line, a.Code, features.CallOptions{})
	return jsonResult(exp)
}

func handleCommentRefactor(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	var a commentRefactorArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Operation == "" || a.FunctionID == "" {
		return errorResult("commentRefactor requires operation and functionId arguments")
	}
	ref := knowledge.FunctionRef{ID: a.FunctionID, Name: a.FunctionName, File: a.File, Line: a.Line}
	com := s.commentator.Comment(ctx, a.Operation, ref, a.Diff, features.CallOptions{})
	return jsonResult(com)
}

func handleRefineDeadCode(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	var a refineDeadCodeArgs
	if err := json.Unmarshal(args, &a); err != nil || len(a.Candidates) == 0 {
		return errorResult("refineDeadCode requires a non-empty candidates array")
	}
	candidates := make([]enrich.Candidate, len(a.Candidates))
	for i, c := range a.Candidates {
		candidates[i] = enrich.Candidate{
			Ref:        knowledge.FunctionRef{ID: c.ID, Name: c.Name, File: c.File, Line: c.Line},
			Confidence: c.Confidence,
		}
	}
	refined := s.refiner.Refine(ctx, candidates, features.CallOptions{})
	return jsonResult(refined)
}

func handleRagQuery(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	return runRag(ctx, s, args, rag.KindQuery)
}

func handleRagExplain(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	return runRag(ctx, s, args, rag.KindExplain)
}

func handleRagSuggest(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	return runRag(ctx, s, args, rag.KindSuggest)
}

func runRag(ctx context.Context, s *Server, args json.RawMessage, kind rag.Kind) ToolCallResult {
	var a ragArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Query == "" {
		return errorResult("a query argument is required")
	}
	resp, err := s.pipeline.Run(ctx, rag.Request{
		Kind:           kind,
		Query:          a.Query,
		DirectFallback: a.DirectFallback,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return jsonResult(resp)
}

func handleAIStats(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	return jsonResult(s.tracker.GetAllStats())
}

func handleCacheStats(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	return jsonResult(s.cache.Stats())
}

func handleResetAIStats(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	s.tracker.ResetStats()
	return textResult("AI usage statistics reset")
}

func handleClearCache(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult {
	s.cache.Clear()
	return textResult("AI response cache cleared")
}
