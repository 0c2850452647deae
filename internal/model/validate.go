package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report wire names so messages line up with the generated JSON.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// InvariantError describes the first invariant an exam breaks.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return e.Field + ": " + e.Reason
}

// Validate checks the struct-level invariants of an exam: required title,
// known question types, positive scores and options present exactly for
// multiple-choice questions.
func (e Exam) Validate() error {
	if err := validatorInstance().Struct(e); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &InvariantError{Field: fieldPath(fe.Namespace()), Reason: describeTag(fe)}
		}
		return fmt.Errorf("validate exam: %w", err)
	}
	for si, s := range e.Sections {
		for qi, q := range s.Questions {
			field := fmt.Sprintf("sections[%d].questions[%d].options", si, qi)
			switch {
			case q.Type == MultipleChoice && len(q.Options) == 0:
				return &InvariantError{Field: field, Reason: "multiple-choice question has no options"}
			case q.Type != MultipleChoice && len(q.Options) > 0:
				return &InvariantError{Field: field, Reason: fmt.Sprintf("options not allowed for %q", q.Type)}
			}
		}
	}
	return nil
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
