package respparse

import "testing"

var deadCodeSpec = Spec{
	Labels: []string{"ASSESSMENT", "REASONING", "CONFIDENCE"},
	Defaults: map[string]string{
		"ASSESSMENT": "unknown",
		"REASONING":  "no reasoning provided",
	},
}

func TestParseWellFormed(t *testing.T) {
	raw := "ASSESSMENT: likely dead\nREASONING: no callers found in the graph.\nThe symbol is also unexported.\nCONFIDENCE: 0.85"
	res := Parse(raw, deadCodeSpec)

	if got := res.Section("ASSESSMENT"); got != "likely dead" {
		t.Errorf("ASSESSMENT = %q", got)
	}
	want := "no callers found in the graph.\nThe symbol is also unexported."
	if got := res.Section("REASONING"); got != want {
		t.Errorf("REASONING = %q, want %q", got, want)
	}
	if got := res.Float("CONFIDENCE", 0.5); got != 0.85 {
		t.Errorf("CONFIDENCE = %v, want 0.85", got)
	}
}

func TestParseLabelFreeText(t *testing.T) {
	res := Parse("The model ignored the requested format entirely and rambled.", deadCodeSpec)

	if res.Matched("ASSESSMENT") || res.Matched("REASONING") || res.Matched("CONFIDENCE") {
		t.Error("no label should match in label-free text")
	}
	if got := res.Section("ASSESSMENT"); got != "unknown" {
		t.Errorf("ASSESSMENT default = %q", got)
	}
	if got := res.Section("REASONING"); got != "no reasoning provided" {
		t.Errorf("REASONING default = %q", got)
	}
	if got := res.Float("CONFIDENCE", 0.5); got != 0.5 {
		t.Errorf("CONFIDENCE fallback = %v, want 0.5", got)
	}
}

func TestParseEmptyInput(t *testing.T) {
	res := Parse("", deadCodeSpec)
	if got := res.Section("ASSESSMENT"); got != "unknown" {
		t.Errorf("ASSESSMENT default = %q", got)
	}
}

func TestParseMarkdownDecoratedLabels(t *testing.T) {
	raw := "**SUMMARY:** the rename is safe.\n- RISK: low\n## RECOMMENDATIONS:\nUpdate the call sites first."
	res := Parse(raw, Spec{
		Labels: []string{"SUMMARY", "RISK", "RECOMMENDATIONS"},
	})

	if got := res.Section("SUMMARY"); got != "the rename is safe." {
		t.Errorf("SUMMARY = %q", got)
	}
	if got := res.Section("RISK"); got != "low" {
		t.Errorf("RISK = %q", got)
	}
	if got := res.Section("RECOMMENDATIONS"); got != "Update the call sites first." {
		t.Errorf("RECOMMENDATIONS = %q", got)
	}
}

func TestParseCaseInsensitiveLabels(t *testing.T) {
	res := Parse("assessment: used\nconfidence: 0.2", deadCodeSpec)
	if got := res.Section("ASSESSMENT"); got != "used" {
		t.Errorf("ASSESSMENT = %q", got)
	}
	if got := res.Float("CONFIDENCE", 0.5); got != 0.2 {
		t.Errorf("CONFIDENCE = %v", got)
	}
}

func TestFloatVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"plain", "CONFIDENCE: 0.75", 0.75},
		{"with prose", "CONFIDENCE: 0.6 based on call-graph evidence", 0.6},
		{"percentage", "CONFIDENCE: 85", 0.85},
		{"no number", "CONFIDENCE: quite sure", 0.5},
		{"out of range", "CONFIDENCE: 400", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Parse(tt.raw, deadCodeSpec)
			if got := res.Float("CONFIDENCE", 0.5); got != tt.want {
				t.Errorf("Float = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfidenceFromAssessment(t *testing.T) {
	tests := []struct {
		assessment string
		want       float64
	}{
		{"definitely dead", 0.95},
		{"high confidence this is dead", 0.9},
		{"likely dead", 0.7},
		{"possibly dead", 0.5},
		{"unlikely to be dead", 0.3},
		{"not likely dead", 0.3},
		{"unused, safe to remove", 0.9},
		{"still in use", 0.1},
		{"used by the scheduler", 0.1},
		{"not dead", 0.1},
		{"gibberish", 0.42},
	}
	for _, tt := range tests {
		t.Run(tt.assessment, func(t *testing.T) {
			if got := ConfidenceFromAssessment(tt.assessment, 0.42); got != tt.want {
				t.Errorf("ConfidenceFromAssessment(%q) = %v, want %v", tt.assessment, got, tt.want)
			}
		})
	}
}

func TestInferredConfidenceFromParsedAssessment(t *testing.T) {
	// The numeric section is missing but the categorical one parsed; the
	// consumer derives the default from it.
	res := Parse("ASSESSMENT: likely dead\nREASONING: nothing references it.", deadCodeSpec)
	if res.Matched("CONFIDENCE") {
		t.Fatal("CONFIDENCE should be absent")
	}
	inferred := ConfidenceFromAssessment(res.Section("ASSESSMENT"), 0.5)
	if inferred != 0.7 {
		t.Errorf("inferred confidence = %v, want 0.7", inferred)
	}
}
