package rag

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Prompt is one request kind's template pair. The user template receives the
// assembled code context and the query, in that order.
type Prompt struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Templates holds the per-kind prompt templates, defaults merged with any
// overrides from .ragex/prompts.yaml.
type Templates struct {
	prompts map[Kind]Prompt
}

func defaultPrompts() map[Kind]Prompt {
	return map[Kind]Prompt{
		KindQuery: {
			System: "You are a code assistant answering questions about a specific codebase. " +
				"Ground your answer in the provided code context. If the context does not " +
				"contain the answer, say so rather than guessing.",
			User: "Code context:\n%s\n\nQuestion: %s",
		},
		KindExplain: {
			System: "You are a code assistant explaining code from a specific codebase. " +
				"Describe what the code does, how it fits into the surrounding context, " +
				"and any notable behavior.",
			User: "Code context:\n%s\n\nExplain: %s",
		},
		KindSuggest: {
			System: "You are a code assistant suggesting improvements to a specific codebase. " +
				"Base suggestions on the provided context and keep them concrete and minimal.",
			User: "Code context:\n%s\n\nSuggest improvements for: %s",
		},
	}
}

// LoadTemplates returns the default templates merged with overrides from
// <repoRoot>/.ragex/prompts.yaml when that file exists. Keys in the override
// file are the request kinds; empty fields inherit the default.
func LoadTemplates(repoRoot string) (*Templates, error) {
	t := &Templates{prompts: defaultPrompts()}

	path := filepath.Join(repoRoot, ".ragex", "prompts.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("reading prompt overrides: %w", err)
	}

	var overrides map[string]Prompt
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for kind, over := range overrides {
		p, ok := t.prompts[Kind(kind)]
		if !ok {
			continue
		}
		if over.System != "" {
			p.System = over.System
		}
		if over.User != "" {
			p.User = over.User
		}
		t.prompts[Kind(kind)] = p
	}
	return t, nil
}

// DefaultTemplates returns the built-in templates without file overrides.
func DefaultTemplates() *Templates {
	return &Templates{prompts: defaultPrompts()}
}

// Render builds the system prompt and user prompt for a request kind.
func (t *Templates) Render(kind Kind, contextStr, query string) (system, user string) {
	p, ok := t.prompts[kind]
	if !ok {
		p = t.prompts[KindQuery]
	}
	if contextStr == "" {
		contextStr = "(no code context available)"
	}
	return p.System, fmt.Sprintf(p.User, contextStr, query)
}
