package prompts

import (
	"strings"
	"testing"
)

func TestInstructions(t *testing.T) {
	tests := []struct {
		lang     string
		wantHint string
	}{
		{"zh", "most likely Chinese"},
		{"en", "most likely English"},
		{"fr", "matches the reference material."},
	}
	for _, tt := range tests {
		t.Run(tt.lang, func(t *testing.T) {
			text, err := Instructions(tt.lang)
			if err != nil {
				t.Fatalf("Instructions: %v", err)
			}
			if !strings.Contains(text, tt.wantHint) {
				t.Errorf("instructions missing language hint %q", tt.wantHint)
			}
			for _, want := range []string{
				"SINGLE dollar signs",
				`"diagramSvg"`,
				`"Single Choice", "True/False", "Short Answer", "Essay"`,
				"Do NOT copy questions",
			} {
				if !strings.Contains(text, want) {
					t.Errorf("instructions missing %q", want)
				}
			}
		})
	}
}
