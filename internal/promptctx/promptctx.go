// Package promptctx assembles typed prompt contexts from the graph and
// retrieval collaborators. Each AI feature kind has its own context variant;
// the set is closed so rendering is an exhaustive match over the variants.
//
// Builders tolerate missing data. Absence of graph or retrieval results
// degrades context richness but never aborts the request.
package promptctx

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ragex/internal/knowledge"
	"ragex/internal/retrieval"
)

// snippetMaxChars bounds each rendered code snippet inside a prompt.
const snippetMaxChars = 600

// maxGraphRefs bounds how many caller/callee references are rendered.
const maxGraphRefs = 10

// Kind tags a prompt-context variant.
type Kind string

const (
	KindValidationError    Kind = "validationError"
	KindRefactorPreview    Kind = "refactorPreview"
	KindDeadCodeAnalysis   Kind = "deadCodeAnalysis"
	KindDuplication        Kind = "duplicationAnalysis"
	KindDependencyInsights Kind = "dependencyInsights"
	KindComplexity         Kind = "complexityExplanation"
)

// Metadata accompanies every context variant.
type Metadata struct {
	Timestamp time.Time         `json:"timestamp"`
	Options   map[string]string `json:"options,omitempty"`
}

// GraphContext carries call-graph grounding for function-centric features.
type GraphContext struct {
	Callers    []knowledge.FunctionRef `json:"callers,omitempty"`
	Callees    []knowledge.FunctionRef `json:"callees,omitempty"`
	Importance float64                 `json:"importance,omitempty"`
}

// SemanticContext carries retrieved snippets for similarity-grounded features.
type SemanticContext struct {
	Snippets []retrieval.Result `json:"snippets,omitempty"`
}

// Context is the closed sum of prompt-context variants. Only the variant
// structs in this package implement it.
type Context interface {
	Kind() Kind
	isContext()
}

// ValidationErrorContext grounds an analyzer/validation failure explanation.
type ValidationErrorContext struct {
	Message  string           `json:"message"`
	File     string           `json:"file,omitempty"`
	Line     int              `json:"line,omitempty"`
	Code     string           `json:"code,omitempty"`
	Semantic *SemanticContext `json:"semantic,omitempty"`
	Meta     Metadata         `json:"meta"`
}

// RefactorPreviewContext grounds refactor-risk commentary.
type RefactorPreviewContext struct {
	Operation string                `json:"operation"`
	Target    knowledge.FunctionRef `json:"target"`
	Diff      string                `json:"diff,omitempty"`
	Graph     *GraphContext         `json:"graph,omitempty"`
	Meta      Metadata              `json:"meta"`
}

// DeadCodeContext grounds dead-code confidence refinement for one candidate.
type DeadCodeContext struct {
	Candidate         knowledge.FunctionRef `json:"candidate"`
	InitialConfidence float64               `json:"initialConfidence"`
	Graph             *GraphContext         `json:"graph,omitempty"`
	Meta              Metadata              `json:"meta"`
}

// DuplicationContext grounds duplicated-code commentary.
type DuplicationContext struct {
	Description string           `json:"description"`
	Semantic    *SemanticContext `json:"semantic,omitempty"`
	Meta        Metadata         `json:"meta"`
}

// DependencyInsightsContext grounds module-coupling commentary.
type DependencyInsightsContext struct {
	Module       string   `json:"module"`
	Dependencies []string `json:"dependencies,omitempty"`
	Dependents   []string `json:"dependents,omitempty"`
	Meta         Metadata `json:"meta"`
}

// ComplexityContext grounds complexity-hotspot explanation.
type ComplexityContext struct {
	Function knowledge.FunctionRef `json:"function"`
	Score    float64               `json:"score"`
	Code     string                `json:"code,omitempty"`
	Graph    *GraphContext         `json:"graph,omitempty"`
	Meta     Metadata              `json:"meta"`
}

func (ValidationErrorContext) Kind() Kind    { return KindValidationError }
func (RefactorPreviewContext) Kind() Kind    { return KindRefactorPreview }
func (DeadCodeContext) Kind() Kind           { return KindDeadCodeAnalysis }
func (DuplicationContext) Kind() Kind        { return KindDuplication }
func (DependencyInsightsContext) Kind() Kind { return KindDependencyInsights }
func (ComplexityContext) Kind() Kind         { return KindComplexity }

func (ValidationErrorContext) isContext()    {}
func (RefactorPreviewContext) isContext()    {}
func (DeadCodeContext) isContext()           {}
func (DuplicationContext) isContext()        {}
func (DependencyInsightsContext) isContext() {}
func (ComplexityContext) isContext()         {}

// ToPromptString renders a context variant into a bounded, model-readable
// section. The type switch is exhaustive over the closed variant set.
func ToPromptString(c Context) string {
	var b strings.Builder
	switch v := c.(type) {
	case ValidationErrorContext:
		fmt.Fprintf(&b, "Validation error: %s\n", v.Message)
		if v.File != "" {
			fmt.Fprintf(&b, "Location: %s:%d\n", v.File, v.Line)
		}
		if v.Code != "" {
			fmt.Fprintf(&b, "Code:\n%s\n", truncate(v.Code, snippetMaxChars))
		}
		writeSemantic(&b, v.Semantic)
	case RefactorPreviewContext:
		fmt.Fprintf(&b, "Refactoring operation: %s\n", v.Operation)
		fmt.Fprintf(&b, "Target: %s (%s:%d)\n", v.Target.Name, v.Target.File, v.Target.Line)
		if v.Diff != "" {
			fmt.Fprintf(&b, "Proposed change:\n%s\n", truncate(v.Diff, snippetMaxChars*2))
		}
		writeGraph(&b, v.Graph)
	case DeadCodeContext:
		fmt.Fprintf(&b, "Dead-code candidate: %s (%s:%d)\n", v.Candidate.Name, v.Candidate.File, v.Candidate.Line)
		fmt.Fprintf(&b, "Initial confidence: %.2f\n", v.InitialConfidence)
		writeGraph(&b, v.Graph)
	case DuplicationContext:
		fmt.Fprintf(&b, "Duplication cluster: %s\n", v.Description)
		writeSemantic(&b, v.Semantic)
	case DependencyInsightsContext:
		fmt.Fprintf(&b, "Module: %s\n", v.Module)
		if len(v.Dependencies) > 0 {
			fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(v.Dependencies, ", "))
		}
		if len(v.Dependents) > 0 {
			fmt.Fprintf(&b, "Depended on by: %s\n", strings.Join(v.Dependents, ", "))
		}
	case ComplexityContext:
		fmt.Fprintf(&b, "Function: %s (%s:%d)\n", v.Function.Name, v.Function.File, v.Function.Line)
		fmt.Fprintf(&b, "Complexity score: %.1f\n", v.Score)
		if v.Code != "" {
			fmt.Fprintf(&b, "Code:\n%s\n", truncate(v.Code, snippetMaxChars))
		}
		writeGraph(&b, v.Graph)
	}
	return b.String()
}

func writeGraph(b *strings.Builder, g *GraphContext) {
	if g == nil {
		return
	}
	if g.Importance > 0 {
		fmt.Fprintf(b, "Importance score: %.3f\n", g.Importance)
	}
	if len(g.Callers) > 0 {
		fmt.Fprintf(b, "Called by (%d): %s\n", len(g.Callers), refNames(g.Callers))
	}
	if len(g.Callees) > 0 {
		fmt.Fprintf(b, "Calls (%d): %s\n", len(g.Callees), refNames(g.Callees))
	}
}

func writeSemantic(b *strings.Builder, s *SemanticContext) {
	if s == nil || len(s.Snippets) == 0 {
		return
	}
	fmt.Fprintf(b, "Similar code (%d matches):\n", len(s.Snippets))
	for i, r := range s.Snippets {
		fmt.Fprintf(b, "--- %s:%d (score %.2f)\n%s\n", r.File, r.Line, r.Score, truncate(r.Code, snippetMaxChars))
		if i >= 4 {
			break
		}
	}
}

func refNames(refs []knowledge.FunctionRef) string {
	names := make([]string, 0, len(refs))
	for i, r := range refs {
		if i >= maxGraphRefs {
			names = append(names, fmt.Sprintf("and %d more", len(refs)-maxGraphRefs))
			break
		}
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

// truncate cuts s at max bytes, backing up to a rune boundary, and appends a
// marker when cut.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n... [truncated]"
}
