package enrich

import (
	"context"
	"fmt"
	"strings"

	"ragex/internal/features"
	"ragex/internal/knowledge"
	"ragex/internal/promptctx"
	"ragex/internal/provider"
	"ragex/internal/respparse"
)

var commentSpec = respparse.Spec{
	Labels: []string{"SUMMARY", "RISK", "RECOMMENDATIONS"},
	Defaults: map[string]string{
		"SUMMARY":         "No automated commentary available for this refactoring.",
		"RISK":            "medium",
		"RECOMMENDATIONS": "Review the change manually before applying.",
	},
}

// Commentary is parsed refactor-risk commentary.
type Commentary struct {
	Summary         string `json:"summary"`
	Risk            string `json:"risk"`
	Recommendations string `json:"recommendations"`
	Degraded        bool   `json:"degraded,omitempty"`
}

// RefactorCommentator produces risk commentary for a proposed refactoring
// before it is applied.
type RefactorCommentator struct {
	client *Client
}

// NewRefactorCommentator creates a commentator over the shared client.
func NewRefactorCommentator(client *Client) *RefactorCommentator {
	return &RefactorCommentator{client: client}
}

// Comment produces commentary for one refactoring preview. Failures degrade
// to a default medium-risk commentary; Comment never returns an error.
func (c *RefactorCommentator) Comment(ctx context.Context, operation string, target knowledge.FunctionRef, diff string, opts features.CallOptions) Commentary {
	if !c.client.svc.Enabled(features.RefactorPreview, opts) {
		return degradedCommentary()
	}

	pctx := c.client.assembler.BuildRefactorPreview(operation, target, diff)
	contextStr := promptctx.ToPromptString(pctx)
	prompt := fmt.Sprintf(
		"%s\nAssess this refactoring. Respond with exactly these labeled sections:\nSUMMARY: <what the change does>\nRISK: <low, medium, or high>\nRECOMMENDATIONS: <what to check before applying>",
		contextStr)

	fallback := &provider.GeneratedResponse{}
	resp := c.client.svc.FetchOrDefault(ctx, features.RefactorPreview,
		operation+":"+target.ID, contextStr, opts,
		c.client.generator(prompt, "You review proposed code refactorings for risk, briefly and concretely.", opts),
		fallback)
	if resp == fallback {
		return degradedCommentary()
	}

	parsed := respparse.Parse(resp.Content, commentSpec)
	return Commentary{
		Summary:         parsed.Section("SUMMARY"),
		Risk:            normalizeRisk(parsed.Section("RISK")),
		Recommendations: parsed.Section("RECOMMENDATIONS"),
	}
}

// normalizeRisk collapses free-text risk answers onto the three-level scale.
func normalizeRisk(risk string) string {
	r := strings.ToLower(risk)
	switch {
	case strings.Contains(r, "high"):
		return "high"
	case strings.Contains(r, "low"):
		return "low"
	default:
		return "medium"
	}
}

func degradedCommentary() Commentary {
	return Commentary{
		Summary:         commentSpec.Defaults["SUMMARY"],
		Risk:            commentSpec.Defaults["RISK"],
		Recommendations: commentSpec.Defaults["RECOMMENDATIONS"],
		Degraded:        true,
	}
}
