package model

import (
	"context"
	"math"
	"time"
)

// AssetKind classifies a normalized reference input.
type AssetKind string

const (
	AssetText     AssetKind = "text"
	AssetImage    AssetKind = "image"
	AssetDocument AssetKind = "document"
)

// UploadedAsset is one normalized reference file fed to generation.
// Payload is a data URL for images and documents and decoded text for text assets.
type UploadedAsset struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Kind        AssetKind `json:"kind"`
	MimeType    string    `json:"mimeType"`
	Payload     string    `json:"payload"`
}

// PartKind distinguishes text parts from binary parts of a generation request.
type PartKind string

const (
	PartText   PartKind = "text"
	PartBinary PartKind = "binary"
)

// Part is one entry of the ordered content sequence sent to the generator.
type Part struct {
	Kind     PartKind
	Label    string // asset display name; empty for the instruction part
	Text     string
	MimeType string
	Data     string // base64 body without the data URL header
}

// GenerationRequest is built fresh for every generation attempt.
type GenerationRequest struct {
	Instructions string
	Assets       []UploadedAsset
	Parts        []Part
}

// QuestionType is the closed set of question kinds. The values are the
// strings the generator emits.
type QuestionType string

const (
	MultipleChoice QuestionType = "Single Choice"
	TrueFalse      QuestionType = "True/False"
	ShortAnswer    QuestionType = "Short Answer"
	Essay          QuestionType = "Essay"
)

// QuestionTypes lists every valid question type in declaration order.
var QuestionTypes = []QuestionType{MultipleChoice, TrueFalse, ShortAnswer, Essay}

// Valid reports whether t is one of the declared question types.
func (t QuestionType) Valid() bool {
	for _, v := range QuestionTypes {
		if t == v {
			return true
		}
	}
	return false
}

// Question is a single exam question. Content, options, answer and
// explanation may carry inline $...$ math.
type Question struct {
	ID          int          `json:"id" yaml:"id"`
	Type        QuestionType `json:"type" yaml:"type" validate:"required,oneof='Single Choice' 'True/False' 'Short Answer' 'Essay'"`
	Content     string       `json:"content" yaml:"content"`
	Diagram     string       `json:"diagramSvg,omitempty" yaml:"diagramSvg,omitempty"`
	Options     []string     `json:"options,omitempty" yaml:"options,omitempty"`
	Answer      string       `json:"answer" yaml:"answer"`
	Explanation string       `json:"explanation" yaml:"explanation"`
	Score       float64      `json:"score" yaml:"score" validate:"gt=0"`
}

// Section groups questions under a printed heading.
type Section struct {
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Questions   []Question `json:"questions" yaml:"questions" validate:"dive"`
}

// Exam is a generated exam paper. ID and CreatedAt are assigned by the
// controller after a successful generation, never by the generator.
type Exam struct {
	ID              string    `json:"id,omitempty" yaml:"id,omitempty"`
	CreatedAt       time.Time `json:"createdAt,omitzero" yaml:"createdAt,omitempty"`
	Title           string    `json:"title" yaml:"title" validate:"required"`
	Subject         string    `json:"subject" yaml:"subject" validate:"required"`
	TotalScore      float64   `json:"totalScore" yaml:"totalScore"`
	DurationMinutes float64   `json:"durationMinutes" yaml:"durationMinutes"`
	Sections        []Section `json:"sections" yaml:"sections" validate:"dive"`
}

// QuestionCount returns the number of questions across all sections.
func (e Exam) QuestionCount() int {
	n := 0
	for _, s := range e.Sections {
		n += len(s.Questions)
	}
	return n
}

// ScoreSum adds up the per-question scores.
func (e Exam) ScoreSum() float64 {
	var sum float64
	for _, s := range e.Sections {
		for _, q := range s.Questions {
			sum += q.Score
		}
	}
	return sum
}

// scoreTolerance absorbs half-point rounding in generator totals.
const scoreTolerance = 0.5

// ScoreMismatch reports whether the advisory TotalScore disagrees with the
// sum of question scores by more than half a point.
func (e Exam) ScoreMismatch() bool {
	return math.Abs(e.ScoreSum()-e.TotalScore) > scoreTolerance
}

// Clone returns a deep copy so callers cannot patch a stored exam in place.
func (e Exam) Clone() Exam {
	out := e
	out.Sections = make([]Section, len(e.Sections))
	for i, s := range e.Sections {
		cs := s
		cs.Questions = make([]Question, len(s.Questions))
		for j, q := range s.Questions {
			cq := q
			if q.Options != nil {
				cq.Options = append([]string(nil), q.Options...)
			}
			cs.Questions[j] = cq
		}
		out.Sections[i] = cs
	}
	return out
}

// ExamSummary is the list-row view of an exam.
type ExamSummary struct {
	ID              string
	Title           string
	Subject         string
	TotalScore      float64
	DurationMinutes float64
	QuestionCount   int
	CreatedAt       time.Time
}

// Summary returns the list-row view of e.
func (e Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:              e.ID,
		Title:           e.Title,
		Subject:         e.Subject,
		TotalScore:      e.TotalScore,
		DurationMinutes: e.DurationMinutes,
		QuestionCount:   e.QuestionCount(),
		CreatedAt:       e.CreatedAt,
	}
}

// ServerConfig holds runtime parameters for the HTTP surface set via CLI flags.
type ServerConfig struct {
	IncludeAnswers bool   // default state of the answer-key toggle
	Lang           string // single target locale
	BasePath       string // URL prefix for sub-path deployments
	SecureCookies  bool
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfTokenCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfTokenCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context (empty string if not set).
func CSRFTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(csrfTokenCtxKey{}).(string)
	return token
}
