package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examforge/internal/app"
	"github.com/pavelanni/examforge/internal/export"
	"github.com/pavelanni/examforge/internal/handler/views"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/ingest"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/store"
)

const (
	// maxRequestBytes caps the raw request stream. Oversized files are
	// drained rather than kept, so this sits well above the per-file cap.
	maxRequestBytes = 1 << 30
	// maxBatchBytes caps the file content kept in memory for one upload.
	maxBatchBytes = 4 * ingest.MaxFileSize
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	app      *app.Controller
	exporter *export.Exporter
	config   model.ServerConfig

	// generating admits one generation at a time.
	generating sync.Mutex
}

// New creates a new Handler. A nil exporter serves print pages only.
func New(a *app.Controller, exp *export.Exporter, cfg model.ServerConfig) (*Handler, error) {
	if a == nil {
		return nil, errors.New("handler: nil controller")
	}
	if exp == nil {
		exp = export.New(nil, nil, nil)
	}
	return &Handler{app: a, exporter: exp, config: cfg}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.limitBody)
	r.Use(h.csrfMiddleware)

	r.Get("/", h.handleIndex)
	r.Post("/generate", h.handleGenerate)
	r.Get("/exams", h.handleList)
	r.Get("/exams/{id}", h.handlePreview)
	r.Get("/exams/{id}/export", h.handleExport)
	r.Get("/exams/{id}/json", h.handleJSON)
	r.Post("/exams/{id}/delete", h.handleDelete)
}

// BasePathMiddleware makes the configured URL prefix available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// path prefixes p with the base path.
func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderHome(w, r, http.StatusOK, views.HomeData{})
}

func (h *Handler) renderHome(w http.ResponseWriter, r *http.Request, status int, data views.HomeData) {
	exams, err := h.app.Exams()
	if err != nil {
		slog.Error("failed to list exams", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	data.Exams = exams
	data.ActiveID = h.app.ActiveID()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.Home(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	exams, err := h.app.Exams()
	if err != nil {
		slog.Error("failed to list exams", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.Page(appI18n.T(ctx, "ExamList"), views.ExamList(exams, h.app.ActiveID())).Render(ctx, w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// examFromURL loads the exam named by the id URL parameter. It writes the
// error response and returns false when there is none.
func (h *Handler) examFromURL(w http.ResponseWriter, r *http.Request) (model.Exam, bool) {
	id := chi.URLParam(r, "id")
	exam, err := h.app.Exam(id)
	if errors.Is(err, store.ErrNotFound) {
		h.renderMessage(w, r, http.StatusNotFound, appI18n.T(r.Context(), "NotFound"))
		return model.Exam{}, false
	}
	if err != nil {
		slog.Error("failed to get exam", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return model.Exam{}, false
	}
	return exam, true
}

// showAnswers reads the answers query parameter, falling back to the
// configured default.
func (h *Handler) showAnswers(r *http.Request) bool {
	v := r.URL.Query().Get("answers")
	if v == "" {
		return h.config.IncludeAnswers
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return h.config.IncludeAnswers
	}
	return b
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examFromURL(w, r)
	if !ok {
		return
	}
	if err := h.app.Activate(exam.ID); err != nil {
		slog.Warn("failed to activate exam", "id", exam.ID, "error", err)
	}
	h.renderPreview(w, r, http.StatusOK, exam, nil)
}

func (h *Handler) renderPreview(w http.ResponseWriter, r *http.Request, status int, exam model.Exam, notices []string) {
	answers := h.showAnswers(r)
	doc := app.Document(r.Context(), exam, answers)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	data := views.PreviewData{ID: exam.ID, Doc: doc, ShowAnswers: answers, Notices: notices}
	if err := views.Preview(data).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examFromURL(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	doc := app.Document(ctx, exam, h.showAnswers(r))
	region, err := views.ExportRegion(ctx, doc, h.config.Lang, appI18n.T(ctx, "PrintHint"))
	if err != nil {
		slog.Error("render error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	res, err := h.exporter.Export(ctx, region, doc.FileName)
	if err != nil {
		slog.Error("export failed", "id", exam.ID, "error", err)
		h.renderMessage(w, r, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", res.ContentType())
	if res.Kind == export.ResultFile {
		w.Header().Set("Content-Disposition", attachment(res.Name))
	}
	if _, err := w.Write(res.Data); err != nil {
		slog.Error("write export", "error", err)
	}
}

func (h *Handler) handleJSON(w http.ResponseWriter, r *http.Request) {
	exam, ok := h.examFromURL(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment(model.SafeFileName(exam.Title, "exam", ".json")))
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(exam); err != nil {
		slog.Error("encode exam", "error", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.app.Delete(id)
	if errors.Is(err, store.ErrNotFound) {
		h.renderMessage(w, r, http.StatusNotFound, appI18n.T(r.Context(), "NotFound"))
		return
	}
	if err != nil {
		slog.Error("failed to delete exam", "id", id, "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, h.path("/"), http.StatusSeeOther)
}

func (h *Handler) renderMessage(w http.ResponseWriter, r *http.Request, status int, text string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := views.Message(text).Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

// attachment builds a Content-Disposition header that survives non-ASCII
// file names.
func attachment(name string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": name})
}
