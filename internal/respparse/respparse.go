// Package respparse extracts labeled sections from free-text model output.
//
// Model responses are asked to follow a labeled layout (for example
// "ASSESSMENT:", "REASONING:", "CONFIDENCE:") but are not guaranteed to.
// Parse locates each label and captures text up to the next label or end of
// text; sections that fail to match fall back to deterministic defaults. The
// parser never returns an error, so the worst case is an all-default result.
package respparse

import (
	"strconv"
	"strings"
)

// Spec supplies the label vocabulary and per-label defaults for one consumer.
type Spec struct {
	// Labels are the expected section labels, without the trailing colon.
	// Matching is case-insensitive and anchored at line start.
	Labels []string
	// Defaults provide the fallback text per label when the section is
	// absent from the raw output.
	Defaults map[string]string
}

// Result holds the extracted sections.
type Result struct {
	sections map[string]string
	matched  map[string]bool
}

// Parse extracts the spec's labeled sections from raw model output. Sections
// are captured from their label to the next known label or end of text. A
// label appearing mid-line ("SUMMARY: text") captures the remainder of that
// line plus following lines.
func Parse(raw string, spec Spec) Result {
	res := Result{
		sections: make(map[string]string, len(spec.Labels)),
		matched:  make(map[string]bool, len(spec.Labels)),
	}

	lines := strings.Split(raw, "\n")
	current := ""
	var buf strings.Builder

	flush := func() {
		if current == "" {
			return
		}
		text := strings.TrimSpace(buf.String())
		if text != "" {
			res.sections[current] = text
			res.matched[current] = true
		}
		buf.Reset()
	}

	for _, line := range lines {
		if label, rest, ok := matchLabel(line, spec.Labels); ok {
			flush()
			current = label
			if rest != "" {
				buf.WriteString(rest)
				buf.WriteString("\n")
			}
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()

	for _, label := range spec.Labels {
		if !res.matched[label] {
			res.sections[label] = spec.Defaults[label]
		}
	}
	return res
}

// matchLabel reports whether the line begins with one of the known labels
// followed by a colon, returning the canonical label and the text after it.
func matchLabel(line string, labels []string) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	// Tolerate markdown emphasis around the label ("**SUMMARY:**").
	trimmed = strings.TrimLeft(trimmed, "*#- ")
	upper := strings.ToUpper(trimmed)
	for _, label := range labels {
		prefix := strings.ToUpper(label) + ":"
		if strings.HasPrefix(upper, prefix) {
			rest := strings.TrimSpace(trimmed[len(prefix):])
			rest = strings.TrimLeft(rest, "* ")
			return label, rest, true
		}
	}
	return "", "", false
}

// Section returns the extracted (or defaulted) text for a label.
func (r Result) Section(label string) string {
	return r.sections[label]
}

// Matched reports whether the label was actually present in the raw output,
// as opposed to defaulted.
func (r Result) Matched(label string) bool {
	return r.matched[label]
}

// Float parses the label's section as a number, tolerating surrounding prose
// ("CONFIDENCE: 0.85 based on call-graph evidence"). It returns fallback when
// the section is absent or carries no parseable number.
func (r Result) Float(label string, fallback float64) float64 {
	if !r.matched[label] {
		return fallback
	}
	for _, field := range strings.Fields(r.sections[label]) {
		field = strings.Trim(field, "()%,;")
		if v, err := strconv.ParseFloat(field, 64); err == nil {
			// Accept percentage-style answers.
			if v > 1 && v <= 100 {
				v /= 100
			}
			if v >= 0 && v <= 1 {
				return v
			}
		}
	}
	return fallback
}

// ConfidenceFromAssessment infers a numeric confidence from a categorical
// assessment when the model omitted the numeric section. The mapping is
// deterministic; unrecognized assessments yield fallback. Negated forms must
// be checked before their positive substrings: "unlikely" contains "likely"
// and "unused" contains "used".
func ConfidenceFromAssessment(assessment string, fallback float64) float64 {
	a := strings.ToLower(assessment)
	switch {
	case strings.Contains(a, "not dead"), strings.Contains(a, "in use"):
		return 0.1
	case strings.Contains(a, "unlikely"), strings.Contains(a, "not likely"):
		return 0.3
	case strings.Contains(a, "unused"):
		return 0.9
	case strings.Contains(a, "used"):
		return 0.1
	case strings.Contains(a, "definitely"), strings.Contains(a, "certain"):
		return 0.95
	case strings.Contains(a, "high"), strings.Contains(a, "very likely"):
		return 0.9
	case strings.Contains(a, "likely"), strings.Contains(a, "probable"):
		return 0.7
	case strings.Contains(a, "medium"), strings.Contains(a, "moderate"), strings.Contains(a, "possibly"):
		return 0.5
	case strings.Contains(a, "low"):
		return 0.3
	default:
		return fallback
	}
}
