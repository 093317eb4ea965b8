package promptctx

import (
	"context"
	"log/slog"
	"time"

	"ragex/internal/knowledge"
	"ragex/internal/retrieval"
)

// Assembler builds prompt contexts from the graph and retrieval
// collaborators. Either collaborator may be nil; the corresponding grounding
// sections are simply omitted.
type Assembler struct {
	graph  knowledge.Graph
	engine retrieval.Engine
	logger *slog.Logger

	now func() time.Time
}

// NewAssembler creates a context assembler.
func NewAssembler(graph knowledge.Graph, engine retrieval.Engine, logger *slog.Logger) *Assembler {
	return &Assembler{
		graph:  graph,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
}

// BuildValidationError assembles the context for explaining a validation
// failure, enriched with up to limit semantically similar snippets.
func (a *Assembler) BuildValidationError(ctx context.Context, message, file string, line int, code string, limit int) ValidationErrorContext {
	out := ValidationErrorContext{
		Message: message,
		File:    file,
		Line:    line,
		Code:    code,
		Meta:    a.meta(nil),
	}
	out.Semantic = a.searchSimilar(ctx, message, limit)
	return out
}

// BuildRefactorPreview assembles the context for refactor-risk commentary.
// Call-graph data for the target is attached when the graph knows it.
func (a *Assembler) BuildRefactorPreview(operation string, target knowledge.FunctionRef, diff string) RefactorPreviewContext {
	return RefactorPreviewContext{
		Operation: operation,
		Target:    target,
		Diff:      diff,
		Graph:     a.graphFor(target),
		Meta:      a.meta(map[string]string{"operation": operation}),
	}
}

// BuildDeadCode assembles the context for refining one dead-code candidate.
func (a *Assembler) BuildDeadCode(candidate knowledge.FunctionRef, initialConfidence float64) DeadCodeContext {
	return DeadCodeContext{
		Candidate:         candidate,
		InitialConfidence: initialConfidence,
		Graph:             a.graphFor(candidate),
		Meta:              a.meta(nil),
	}
}

// BuildDuplication assembles the context for duplicated-code commentary from
// a representative snippet.
func (a *Assembler) BuildDuplication(ctx context.Context, description, representative string, limit int) DuplicationContext {
	return DuplicationContext{
		Description: description,
		Semantic:    a.searchSimilar(ctx, representative, limit),
		Meta:        a.meta(nil),
	}
}

// BuildDependencyInsights assembles the context for module-coupling
// commentary.
func (a *Assembler) BuildDependencyInsights(module string) DependencyInsightsContext {
	out := DependencyInsightsContext{
		Module: module,
		Meta:   a.meta(nil),
	}
	if a.graph != nil {
		out.Dependencies = a.graph.ModuleDependencies(module)
		out.Dependents = a.graph.ModuleDependents(module)
	}
	return out
}

// BuildComplexity assembles the context for explaining a complexity hotspot.
func (a *Assembler) BuildComplexity(fn knowledge.FunctionRef, score float64, code string) ComplexityContext {
	return ComplexityContext{
		Function: fn,
		Score:    score,
		Code:     code,
		Graph:    a.graphFor(fn),
		Meta:     a.meta(nil),
	}
}

// graphFor collects caller/callee/importance grounding for a function. A nil
// graph or an unknown function yields nil, not an error.
func (a *Assembler) graphFor(ref knowledge.FunctionRef) *GraphContext {
	if a.graph == nil {
		return nil
	}
	g := &GraphContext{
		Callers: a.graph.GetCallers(ref),
		Callees: a.graph.GetCallees(ref),
	}
	if node := a.graph.FindNode(knowledge.KindFunction, ref.ID); node != nil {
		g.Importance = node.Importance
	}
	if len(g.Callers) == 0 && len(g.Callees) == 0 && g.Importance == 0 {
		return nil
	}
	return g
}

// searchSimilar runs a semantic search and converts failure into an absent
// semantic section.
func (a *Assembler) searchSimilar(ctx context.Context, query string, limit int) *SemanticContext {
	if a.engine == nil || query == "" {
		return nil
	}
	if limit <= 0 {
		limit = 5
	}
	results, err := a.engine.Search(ctx, query, retrieval.SearchOptions{
		Limit:    limit,
		Strategy: retrieval.StrategySemantic,
	})
	if err != nil {
		a.logger.Debug("Semantic search for prompt context failed", "error", err.Error())
		return nil
	}
	if len(results) == 0 {
		return nil
	}
	return &SemanticContext{Snippets: results}
}

func (a *Assembler) meta(options map[string]string) Metadata {
	return Metadata{Timestamp: a.now(), Options: options}
}
