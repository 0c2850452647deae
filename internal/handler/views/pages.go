package views

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/model"
	"github.com/pavelanni/examforge/internal/render"
)

const shellCSS = `<style>
body { margin: 0; background: #f1f5f9; color: #1e293b; font-family: system-ui, -apple-system, "PingFang SC", "Microsoft YaHei", sans-serif; }
.top { background: #4f46e5; color: #fff; padding: 12px 24px; display: flex; align-items: baseline; gap: 16px; }
.top a { color: #fff; text-decoration: none; font-weight: bold; font-size: 18px; }
.top span { opacity: .8; font-size: 13px; }
main { max-width: 960px; margin: 24px auto; padding: 0 16px; }
.card { background: #fff; border-radius: 10px; box-shadow: 0 1px 3px rgba(0,0,0,.1); padding: 20px; margin-bottom: 20px; }
.notice { background: #fef3c7; border: 1px solid #f59e0b; border-radius: 6px; padding: 8px 12px; margin: 8px 0; font-size: 14px; }
.error { background: #fee2e2; border-color: #ef4444; }
.btn { display: inline-block; background: #4f46e5; color: #fff; border: 0; border-radius: 6px; padding: 8px 16px; font-size: 14px; cursor: pointer; text-decoration: none; }
.btn.secondary { background: #fff; color: #334155; border: 1px solid #cbd5e1; }
.btn.danger { background: #dc2626; }
.controls { display: flex; flex-wrap: wrap; gap: 8px; align-items: center; justify-content: space-between; }
.controls form { display: inline; }
ul.exams { list-style: none; padding: 0; margin: 0; }
ul.exams li { display: flex; justify-content: space-between; align-items: center; padding: 10px 0; border-bottom: 1px solid #e2e8f0; }
ul.exams li.active a { font-weight: bold; }
.muted { color: #64748b; font-size: 13px; }
.paper { background: #fff; padding: 10mm 0; box-shadow: 0 1px 3px rgba(0,0,0,.1); }
</style>
`

// Page wraps body in the application shell.
func Page(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		bp := model.BasePathFromContext(ctx)
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>`)
		h.text(title)
		h.raw(`</title>`, shellCSS, documentCSS, mathJax, `</head><body><div class="top"><a href="`)
		h.text(bp + "/")
		h.raw(`">`)
		h.text(i18n.T(ctx, "AppTitle"))
		h.raw(`</a><span>`)
		h.text(i18n.T(ctx, "AppTagline"))
		h.raw(`</span></div><main>`)
		h.render(ctx, body)
		h.raw(`</main></body></html>`)
		return h.err
	})
}

// HomeData is the view model of the start page.
type HomeData struct {
	Exams    []model.ExamSummary
	ActiveID string
	Notices  []string
	Error    string
}

// Home is the upload form followed by the exam list.
func Home(data HomeData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		bp := model.BasePathFromContext(ctx)
		h := &htmlWriter{w: w}
		h.raw(`<div class="card"><h2>`)
		h.text(i18n.T(ctx, "UploadTitle"))
		h.raw(`</h2>`)
		if data.Error != "" {
			h.raw(`<div class="notice error">`)
			h.text(data.Error)
			h.raw(`</div>`)
		}
		for _, n := range data.Notices {
			h.raw(`<div class="notice">`)
			h.text(n)
			h.raw(`</div>`)
		}
		h.raw(`<form method="post" enctype="multipart/form-data" action="`)
		h.text(bp + "/generate")
		h.raw(`"><input type="hidden" name="csrf_token" value="`)
		h.text(model.CSRFTokenFromContext(ctx))
		h.raw(`"><p><input type="file" name="files" multiple accept="image/*,application/pdf,text/plain"></p><p class="muted">`)
		h.text(i18n.T(ctx, "UploadHint"))
		h.raw(`</p><button class="btn" type="submit" onclick="this.disabled=true;this.form.submit();">`)
		h.text(i18n.T(ctx, "Generate"))
		h.raw(`</button></form></div>`)
		h.render(ctx, ExamList(data.Exams, data.ActiveID))
		return h.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Page(i18n.T(ctx, "AppTitle"), body).Render(ctx, w)
	})
}

// ExamList lists exams newest first.
func ExamList(exams []model.ExamSummary, activeID string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		bp := model.BasePathFromContext(ctx)
		h := &htmlWriter{w: w}
		h.raw(`<div class="card"><h2>`)
		h.text(i18n.T(ctx, "ExamList"))
		h.raw(`</h2>`)
		if len(exams) == 0 {
			h.raw(`<p class="muted">`)
			h.text(i18n.T(ctx, "NoExams"))
			h.raw(`</p></div>`)
			return h.err
		}
		h.raw(`<ul class="exams">`)
		for _, e := range exams {
			class := ""
			if e.ID == activeID {
				class = ` class="active"`
			}
			h.raw(`<li`, class, `><div><a href="`)
			h.text(bp + "/exams/" + e.ID)
			h.raw(`">`)
			h.text(e.Title)
			h.raw(`</a><div class="muted">`)
			h.text(fmt.Sprintf("%s · %s · %s", e.Subject, i18n.Tp(ctx, "QuestionCount", e.QuestionCount), e.CreatedAt.Local().Format("2006-01-02 15:04")))
			h.raw(`</div></div>`)
			deleteForm(ctx, h, e.ID)
			h.raw(`</li>`)
		}
		h.raw(`</ul></div>`)
		return h.err
	})
}

func deleteForm(ctx context.Context, h *htmlWriter, id string) {
	bp := model.BasePathFromContext(ctx)
	h.raw(`<form method="post" action="`)
	h.text(bp + "/exams/" + id + "/delete")
	h.raw(`" onsubmit="return confirm('`)
	h.text(i18n.T(ctx, "ConfirmDelete"))
	h.raw(`')"><input type="hidden" name="csrf_token" value="`)
	h.text(model.CSRFTokenFromContext(ctx))
	h.raw(`"><button class="btn danger" type="submit">`)
	h.text(i18n.T(ctx, "Delete"))
	h.raw(`</button></form>`)
}

// PreviewData is the view model of the exam preview.
type PreviewData struct {
	ID          string
	Doc         *render.Document
	ShowAnswers bool
	Notices     []string
}

// Preview shows the printable document with its controls.
func Preview(data PreviewData) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		bp := model.BasePathFromContext(ctx)
		base := bp + "/exams/" + data.ID
		answers := "0"
		toggleLabel := i18n.T(ctx, "ShowAnswers")
		if data.ShowAnswers {
			answers = "1"
			toggleLabel = i18n.T(ctx, "HideAnswers")
		}
		toggle := "1"
		if data.ShowAnswers {
			toggle = "0"
		}

		h := &htmlWriter{w: w}
		h.raw(`<div class="card controls"><h2>`)
		h.text(i18n.T(ctx, "Preview"))
		h.raw(`</h2><div><a class="btn secondary" href="`)
		h.text(base + "?answers=" + toggle)
		h.raw(`">`)
		h.text(toggleLabel)
		h.raw(`</a> <a class="btn" href="`)
		h.text(base + "/export?answers=" + answers)
		h.raw(`">`)
		h.text(i18n.T(ctx, "DownloadPDF"))
		h.raw(`</a> <a class="btn secondary" href="`)
		h.text(base + "/json")
		h.raw(`">`)
		h.text(i18n.T(ctx, "DownloadJSON"))
		h.raw(`</a> `)
		deleteForm(ctx, h, data.ID)
		h.raw(`</div></div>`)
		for _, n := range data.Notices {
			h.raw(`<div class="notice">`)
			h.text(n)
			h.raw(`</div>`)
		}
		h.raw(`<div class="paper">`)
		h.render(ctx, Document(data.Doc))
		h.raw(`</div>`)
		return h.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Page(data.Doc.Title, body).Render(ctx, w)
	})
}

// Message is a page with a single notice and a link home.
func Message(text string) templ.Component {
	body := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div class="card"><div class="notice error">`)
		h.text(text)
		h.raw(`</div><a class="btn secondary" href="`)
		h.text(model.BasePathFromContext(ctx) + "/")
		h.raw(`">`)
		h.text(i18n.T(ctx, "Back"))
		h.raw(`</a></div>`)
		return h.err
	})
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return Page(i18n.T(ctx, "AppTitle"), body).Render(ctx, w)
	})
}
