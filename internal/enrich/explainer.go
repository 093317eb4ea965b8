package enrich

import (
	"context"
	"fmt"

	"ragex/internal/features"
	"ragex/internal/promptctx"
	"ragex/internal/provider"
	"ragex/internal/respparse"
)

var explainSpec = respparse.Spec{
	Labels: []string{"SUMMARY", "CAUSE", "FIX"},
	Defaults: map[string]string{
		"SUMMARY": "The analyzer reported an error it could not explain further.",
		"CAUSE":   "unknown",
		"FIX":     "Review the reported location manually.",
	},
}

// Explanation is a parsed validation-error explanation. Degraded marks a
// response assembled from defaults because the provider call failed.
type Explanation struct {
	Summary  string `json:"summary"`
	Cause    string `json:"cause"`
	Fix      string `json:"fix"`
	Degraded bool   `json:"degraded,omitempty"`
}

// ErrorExplainer turns raw validation failures into human explanations.
type ErrorExplainer struct {
	client *Client
}

// NewErrorExplainer creates an error explainer over the shared client.
func NewErrorExplainer(client *Client) *ErrorExplainer {
	return &ErrorExplainer{client: client}
}

// Explain produces an explanation for one validation error. Failures degrade
// to a default explanation carrying the original message; Explain never
// returns an error.
func (e *ErrorExplainer) Explain(ctx context.Context, message, file string, line int, code string, opts features.CallOptions) Explanation {
	if !e.client.svc.Enabled(features.ValidationError, opts) {
		return degradedExplanation(message)
	}

	pctx := e.client.assembler.BuildValidationError(ctx, message, file, line, code, 3)
	contextStr := promptctx.ToPromptString(pctx)
	prompt := fmt.Sprintf(
		"%s\nExplain this error. Respond with exactly these labeled sections:\nSUMMARY: <one-sentence explanation>\nCAUSE: <what triggered it>\nFIX: <how to resolve it>",
		contextStr)

	fallback := &provider.GeneratedResponse{}
	resp := e.client.svc.FetchOrDefault(ctx, features.ValidationError, message, contextStr, opts,
		e.client.generator(prompt, "You explain static-analysis errors to developers, briefly and concretely.", opts),
		fallback)
	if resp == fallback {
		return degradedExplanation(message)
	}

	parsed := respparse.Parse(resp.Content, explainSpec)
	return Explanation{
		Summary: parsed.Section("SUMMARY"),
		Cause:   parsed.Section("CAUSE"),
		Fix:     parsed.Section("FIX"),
	}
}

func degradedExplanation(message string) Explanation {
	out := Explanation{
		Summary:  message,
		Cause:    explainSpec.Defaults["CAUSE"],
		Fix:      explainSpec.Defaults["FIX"],
		Degraded: true,
	}
	return out
}
