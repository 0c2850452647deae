// Package prompts renders the instruction text sent with every generation
// request.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"sync"
	"text/template"

	"github.com/pavelanni/examforge/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce sync.Once
	loadErr  error
	generate *template.Template
)

var languageHints = map[string]string{
	"zh": "Ensure the language matches the reference material (most likely Chinese).",
	"en": "Ensure the language matches the reference material (most likely English).",
}

// Data holds template data for the generation instructions.
type Data struct {
	Types        []model.QuestionType
	ChoiceType   model.QuestionType
	LanguageHint string
}

// Load parses the embedded templates once.
func Load() error {
	loadOnce.Do(func() {
		generate, loadErr = template.ParseFS(templateFS, "templates/generate.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

// Instructions returns the task description for lang. Unknown languages
// fall back to matching the reference material without a hint.
func Instructions(lang string) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	hint, ok := languageHints[lang]
	if !ok {
		hint = "Ensure the language matches the reference material."
	}
	data := Data{
		Types:        model.QuestionTypes,
		ChoiceType:   model.MultipleChoice,
		LanguageHint: hint,
	}
	var buf bytes.Buffer
	if err := generate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render instructions: %w", err)
	}
	return buf.String(), nil
}
