// Package app holds the application state: the exam collection, the active
// exam and the services that produce new exams.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/ingest"
	"github.com/pavelanni/examforge/internal/llm"
	"github.com/pavelanni/examforge/internal/llm/prompts"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/render"
	"github.com/pavelanni/examforge/internal/schema"
	"github.com/pavelanni/examforge/internal/store"
)

var (
	ErrNoAssets    = errors.New("no reference files to generate from")
	ErrNoGenerator = errors.New("no generator configured")
)

const idLength = 9

// Controller wires normalization, generation and the exam collection.
type Controller struct {
	store      *store.Store
	generator  llm.Generator
	normalizer *ingest.Normalizer
	lang       string
	now        func() time.Time
}

// New returns a controller over st. gen may be nil for read-only use.
func New(st *store.Store, gen llm.Generator, norm *ingest.Normalizer, lang string) *Controller {
	if norm == nil {
		norm = ingest.New()
	}
	return &Controller{
		store:      st,
		generator:  gen,
		normalizer: norm,
		lang:       lang,
		now:        time.Now,
	}
}

// Ingest normalizes uploads. Failed files are reported, not fatal.
func (c *Controller) Ingest(ctx context.Context, files []ingest.File) ingest.BatchResult {
	return c.normalizer.NormalizeBatch(ctx, files)
}

// Generate asks the generator for a new exam modelled on assets. On
// success the exam gets an id and creation time, is stored and becomes
// active. On failure the collection is left untouched.
func (c *Controller) Generate(ctx context.Context, assets []model.UploadedAsset) (model.Exam, error) {
	if len(assets) == 0 {
		return model.Exam{}, ErrNoAssets
	}
	if c.generator == nil {
		return model.Exam{}, ErrNoGenerator
	}
	instructions, err := prompts.Instructions(c.lang)
	if err != nil {
		return model.Exam{}, fmt.Errorf("build instructions: %w", err)
	}
	req := llm.BuildRequest(assets, instructions)

	start := time.Now()
	exam, err := c.generator.Generate(ctx, req, schema.Exam)
	if err != nil {
		slog.Error("generation failed", "assets", len(assets), "elapsed", time.Since(start), "error", err)
		return model.Exam{}, err
	}

	exam.ID, err = c.newID()
	if err != nil {
		return model.Exam{}, err
	}
	exam.CreatedAt = c.now().Truncate(time.Millisecond)
	if exam.ScoreMismatch() {
		slog.Warn("total score differs from question scores",
			"exam", exam.ID, "totalScore", exam.TotalScore, "sum", exam.ScoreSum())
	}
	if err := c.store.AddActive(exam); err != nil {
		return model.Exam{}, fmt.Errorf("store exam: %w", err)
	}
	slog.Info("exam generated", "exam", exam.ID, "title", exam.Title,
		"questions", exam.QuestionCount(), "elapsed", time.Since(start))
	return exam.Clone(), nil
}

// newID returns a short id not yet used in the collection.
func (c *Controller) newID() (string, error) {
	for range 5 {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:idLength]
		_, err := c.store.Get(id)
		if errors.Is(err, store.ErrNotFound) {
			return id, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", errors.New("could not allocate exam id")
}

// Exams lists the collection newest first.
func (c *Controller) Exams() ([]model.ExamSummary, error) {
	exams, err := c.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]model.ExamSummary, 0, len(exams))
	for _, e := range exams {
		out = append(out, e.Summary())
	}
	return out, nil
}

// Exam returns a copy of the exam with the given id.
func (c *Controller) Exam(id string) (model.Exam, error) {
	exam, err := c.store.Get(id)
	if err != nil {
		return model.Exam{}, err
	}
	return exam, nil
}

// Activate makes id the active exam.
func (c *Controller) Activate(id string) error {
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	return c.store.SetActive(id)
}

// ActiveID returns the id of the active exam or "".
func (c *Controller) ActiveID() string {
	id, err := c.store.Active()
	if err != nil {
		slog.Error("read active exam", "error", err)
		return ""
	}
	return id
}

// Active returns the active exam. ok is false when no exam is active.
func (c *Controller) Active() (exam model.Exam, ok bool, err error) {
	id := c.ActiveID()
	if id == "" {
		return model.Exam{}, false, nil
	}
	exam, err = c.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		return model.Exam{}, false, nil
	}
	if err != nil {
		return model.Exam{}, false, err
	}
	return exam, true, nil
}

// Delete removes an exam and clears it as the active one.
func (c *Controller) Delete(id string) error {
	if err := c.store.Delete(id); err != nil {
		return err
	}
	if c.ActiveID() == id {
		if err := c.store.SetActive(""); err != nil {
			return fmt.Errorf("clear active exam: %w", err)
		}
	}
	slog.Info("exam deleted", "exam", id)
	return nil
}

// Document renders exam with labels for the language in ctx and typesets
// its math.
func Document(ctx context.Context, exam model.Exam, includeAnswers bool) *render.Document {
	doc := render.Render(exam, includeAnswers, i18n.Labels(ctx))
	if n := render.TypesetDocument(ctx, doc, render.InlineMath{}); n > 0 {
		slog.Warn("math left as raw text", "exam", exam.ID, "nodes", n)
	}
	return doc
}
