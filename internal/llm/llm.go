package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/schema"
)

var (
	ErrEmptyResponse   = errors.New("empty response")
	ErrSchemaViolation = errors.New("response violates exam schema")
)

// GenerationError is the single failure type of Generate. Cause is
// human-readable and unwraps to the underlying error.
type GenerationError struct {
	Cause error
}

func (e *GenerationError) Error() string {
	return "generate exam: " + e.Cause.Error()
}

func (e *GenerationError) Unwrap() error { return e.Cause }

// DocumentMode selects how PDF assets reach the backend.
type DocumentMode string

const (
	// DocumentInline sends PDFs as data URLs. Gemini's OpenAI-compatible
	// endpoint accepts them as image_url parts.
	DocumentInline DocumentMode = "inline"
	// DocumentText extracts the text layer locally and sends it as a
	// labelled text part.
	DocumentText DocumentMode = "text"
)

// ParseDocumentMode maps a flag value to a DocumentMode.
func ParseDocumentMode(s string) (DocumentMode, error) {
	switch DocumentMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DocumentInline:
		return DocumentInline, nil
	case DocumentText:
		return DocumentText, nil
	}
	return "", fmt.Errorf("unknown document mode %q (want inline or text)", s)
}

// Generator produces an exam from a prepared request.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest, def jsonschema.Definition) (model.Exam, error)
}

// Temperature biases the backend toward structural fidelity.
const Temperature = 0.5

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api       *openai.Client
	model     string
	documents DocumentMode
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string, documents DocumentMode) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if documents == "" {
		documents = DocumentInline
	}
	return &Client{
		api:       openai.NewClientWithConfig(config),
		model:     modelName,
		documents: documents,
	}
}

// Ping checks that the endpoint answers by listing its models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Generate sends req in one call and parses the response against def.
// There are no retries; every failure is a *GenerationError.
func (c *Client) Generate(ctx context.Context, req model.GenerationRequest, def jsonschema.Definition) (model.Exam, error) {
	content, err := c.messageParts(req.Parts)
	if err != nil {
		return model.Exam{}, &GenerationError{Cause: err}
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, MultiContent: content},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "exam_paper",
				Schema: &def,
			},
		},
		Temperature: Temperature,
	})
	if err != nil {
		return model.Exam{}, &GenerationError{Cause: fmt.Errorf("LLM API call: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return model.Exam{}, &GenerationError{Cause: fmt.Errorf("%w: no choices", ErrEmptyResponse)}
	}

	raw := stripFence(resp.Choices[0].Message.Content)
	if raw == "" {
		return model.Exam{}, &GenerationError{Cause: fmt.Errorf("%w: no content", ErrEmptyResponse)}
	}
	slog.Debug("LLM response", "bytes", len(raw))

	exam, err := schema.ParseWith(def, []byte(raw))
	if err != nil {
		return model.Exam{}, &GenerationError{Cause: fmt.Errorf("%w: %w", ErrSchemaViolation, err)}
	}
	return exam, nil
}

// messageParts maps request parts onto chat content parts, keeping order.
func (c *Client) messageParts(parts []model.Part) ([]openai.ChatMessagePart, error) {
	out := make([]openai.ChatMessagePart, 0, len(parts))
	for _, p := range parts {
		if p.Kind == model.PartText {
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
			continue
		}
		if p.MimeType == "application/pdf" && c.documents == DocumentText {
			text, err := pdfText(p.Data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Label, err)
			}
			out = append(out, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: referenceText(p.Label, text)})
			continue
		}
		out = append(out, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    "data:" + p.MimeType + ";base64," + p.Data,
				Detail: openai.ImageURLDetailHigh,
			},
		})
	}
	return out, nil
}

// stripFence removes a Markdown code fence some backends wrap JSON output in.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
