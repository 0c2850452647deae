// Package schema declares the shape a generated exam must have and checks
// generator output against it.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/pavelanni/examforge/internal/model"
)

// ErrViolation is wrapped by every ViolationError.
var ErrViolation = errors.New("schema violation")

// ViolationError locates the first place a payload breaks the contract.
type ViolationError struct {
	Path   string // JSON path, e.g. $.sections[0].questions[2].score
	Reason string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema violation at %s: %s", e.Path, e.Reason)
}

func (e *ViolationError) Unwrap() error { return ErrViolation }

func questionTypeEnum() []string {
	out := make([]string, len(model.QuestionTypes))
	for i, t := range model.QuestionTypes {
		out[i] = string(t)
	}
	return out
}

var question = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"id":   {Type: jsonschema.Integer},
		"type": {Type: jsonschema.String, Enum: questionTypeEnum()},
		"content": {
			Type:        jsonschema.String,
			Description: "The question text. Use LaTeX for math, enclosed in single dollar signs.",
		},
		"diagramSvg": {
			Type:        jsonschema.String,
			Description: "Optional. A complete SVG string (<svg>...</svg>) for geometry diagrams. Use black strokes, white/transparent fill, suitable for exam printing.",
		},
		"options": {
			Type:        jsonschema.Array,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
			Description: "Options for multiple choice questions. Empty for others.",
		},
		"answer":      {Type: jsonschema.String, Description: "The correct answer"},
		"explanation": {Type: jsonschema.String, Description: "Detailed explanation of the answer"},
		"score":       {Type: jsonschema.Number, Description: "Points for this question"},
	},
	Required:             []string{"id", "type", "content", "answer", "score", "explanation"},
	AdditionalProperties: false,
}

var section = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"title":       {Type: jsonschema.String, Description: "Section title (e.g., 'Part I: Multiple Choice')"},
		"description": {Type: jsonschema.String, Description: "Instructions for this section"},
		"questions":   {Type: jsonschema.Array, Items: &question},
	},
	Required:             []string{"title", "questions"},
	AdditionalProperties: false,
}

// Exam is the output contract passed to the generator and used to check
// its response.
var Exam = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"title":           {Type: jsonschema.String, Description: "The title of the exam paper"},
		"subject":         {Type: jsonschema.String, Description: "The subject of the exam"},
		"totalScore":      {Type: jsonschema.Number, Description: "Total score for the exam"},
		"durationMinutes": {Type: jsonschema.Number, Description: "Recommended duration in minutes"},
		"sections":        {Type: jsonschema.Array, Items: &section},
	},
	Required:             []string{"title", "subject", "sections", "totalScore"},
	AdditionalProperties: false,
}

// Check walks data, as produced by decoding JSON into an any, and returns
// the first violation of def. Nothing is coerced.
func Check(def jsonschema.Definition, data any) error {
	return check(def, data, "$")
}

func check(def jsonschema.Definition, data any, path string) error {
	violation := func(format string, args ...any) error {
		return &ViolationError{Path: path, Reason: fmt.Sprintf(format, args...)}
	}

	switch def.Type {
	case jsonschema.Object:
		obj, ok := data.(map[string]any)
		if !ok {
			return violation("expected object, got %s", kindOf(data))
		}
		for _, name := range def.Required {
			v, present := obj[name]
			if !present {
				return &ViolationError{Path: path + "." + name, Reason: "missing required field"}
			}
			if v == nil {
				return &ViolationError{Path: path + "." + name, Reason: "required field is null"}
			}
		}
		// Sorted so the reported violation is stable across runs.
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			prop, known := def.Properties[k]
			if !known {
				if closed, isBool := def.AdditionalProperties.(bool); isBool && !closed {
					return &ViolationError{Path: path + "." + k, Reason: "unexpected field"}
				}
				continue
			}
			if obj[k] == nil {
				continue
			}
			if err := check(prop, obj[k], path+"."+k); err != nil {
				return err
			}
		}
	case jsonschema.Array:
		arr, ok := data.([]any)
		if !ok {
			return violation("expected array, got %s", kindOf(data))
		}
		if def.Items == nil {
			return nil
		}
		for i, item := range arr {
			if err := check(*def.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case jsonschema.String:
		s, ok := data.(string)
		if !ok {
			return violation("expected string, got %s", kindOf(data))
		}
		if len(def.Enum) > 0 && !slices.Contains(def.Enum, s) {
			return violation("%q is not one of [%s]", s, strings.Join(def.Enum, ", "))
		}
	case jsonschema.Number:
		if _, ok := data.(float64); !ok {
			return violation("expected number, got %s", kindOf(data))
		}
	case jsonschema.Integer:
		n, ok := data.(float64)
		if !ok {
			return violation("expected integer, got %s", kindOf(data))
		}
		if n != math.Trunc(n) {
			return violation("expected integer, got %v", n)
		}
	case jsonschema.Boolean:
		if _, ok := data.(bool); !ok {
			return violation("expected boolean, got %s", kindOf(data))
		}
	}
	return nil
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Parse turns a generator response into an exam. The payload is checked
// against Exam before it is decoded, and the decoded value must then pass
// model validation. Section and question order follow the payload.
func Parse(data []byte) (model.Exam, error) {
	return ParseWith(Exam, data)
}

// ParseWith is Parse against a caller-supplied definition.
func ParseWith(def jsonschema.Definition, data []byte) (model.Exam, error) {
	var exam model.Exam
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return exam, &ViolationError{Path: "$", Reason: "empty payload"}
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return exam, &ViolationError{Path: "$", Reason: "invalid JSON: " + err.Error()}
	}
	if err := Check(def, raw); err != nil {
		return exam, err
	}
	if err := json.Unmarshal(data, &exam); err != nil {
		return model.Exam{}, &ViolationError{Path: "$", Reason: err.Error()}
	}

	if err := exam.Validate(); err != nil {
		var ie *model.InvariantError
		if errors.As(err, &ie) {
			return model.Exam{}, &ViolationError{Path: "$." + ie.Field, Reason: ie.Reason}
		}
		return model.Exam{}, err
	}
	return exam, nil
}
