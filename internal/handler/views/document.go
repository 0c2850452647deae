// Package views holds the HTML components of the web UI and the printable
// exam document.
package views

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/pavelanni/examforge/internal/render"
)

// PrintableID is the element id of the printable region.
const PrintableID = "exam-printable-content"

// PrintableSelector selects the printable region.
const PrintableSelector = "#" + PrintableID

// htmlWriter writes markup and keeps the first error.
type htmlWriter struct {
	w   io.Writer
	err error
}

func (h *htmlWriter) raw(parts ...string) {
	for _, s := range parts {
		if h.err != nil {
			return
		}
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *htmlWriter) text(s string) {
	h.raw(templ.EscapeString(s))
}

func (h *htmlWriter) render(ctx context.Context, c templ.Component) {
	if h.err != nil {
		return
	}
	h.err = c.Render(ctx, h.w)
}

// node writes a text node. Typeset nodes keep $ delimiters around formulas
// for MathJax; untypeset nodes are marked so MathJax leaves them verbatim.
func (h *htmlWriter) node(n *render.TextNode) {
	if n == nil {
		return
	}
	if !n.Typeset {
		h.raw(`<span class="math-text tex2jax_ignore">`)
		h.text(n.Raw)
		h.raw(`</span>`)
		return
	}
	h.raw(`<span class="math-text">`)
	for _, seg := range n.Segments {
		switch seg.Kind {
		case render.SegmentMath:
			h.raw("$")
			h.text(seg.Text)
			h.raw("$")
		default:
			h.text(strings.ReplaceAll(seg.Text, "$", `\$`))
		}
	}
	h.raw(`</span>`)
}

// Document renders the printable region of doc.
func Document(doc *render.Document) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<div id="`, PrintableID, `" class="exam">`)
		for _, r := range doc.Regions {
			region(h, r)
		}
		h.raw(`</div>`)
		return h.err
	})
}

func region(h *htmlWriter, r render.Region) {
	class := "region region-" + string(r.Kind)
	if r.BreakBefore {
		class += " page-break"
	}
	h.raw(`<section class="`, class, `">`)
	if r.Kind == render.RegionAnswers {
		h.raw(`<header class="answer-header"><h2>`)
		h.text(r.Header.Title)
		h.raw(`</h2><p>`)
		h.text(r.Header.Subtitle)
		h.raw(`</p></header>`)
	} else {
		h.raw(`<header class="exam-header"><h1>`)
		h.text(r.Header.Title)
		h.raw(`</h1><div class="meta">`)
		for _, m := range r.Header.Meta {
			h.raw(`<span>`)
			h.text(m.Label + ": " + m.Value)
			h.raw(`</span>`)
		}
		h.raw(`</div><div class="identity">`)
		for _, label := range r.Header.Identity {
			h.raw(`<span>`)
			h.text(label)
			h.raw(`: ______________</span>`)
		}
		h.raw(`</div></header>`)
	}
	for _, b := range r.Blocks {
		block(h, r.Kind, b)
	}
	h.raw(`</section>`)
}

func block(h *htmlWriter, kind render.RegionKind, b render.Block) {
	switch b.Kind {
	case render.BlockSection:
		class := "section-header"
		if kind == render.RegionAnswers {
			class = "answer-section"
		}
		h.raw(`<div class="`, class, `"><h3>`)
		h.text(b.Title)
		h.raw(`</h3>`)
		if b.Description != "" {
			h.raw(`<p class="section-desc">`)
			h.text(b.Description)
			h.raw(`</p>`)
		}
		h.raw(`</div>`)
	case render.BlockQuestion:
		h.raw(`<div class="question"><span class="ordinal">`, fmt.Sprint(b.Ordinal), `.</span><div class="q-body"><div class="q-head"><div class="q-content">`)
		h.node(b.Content)
		h.raw(`</div><span class="score">`)
		h.text(b.ScoreLabel)
		h.raw(`</span></div>`)
		if b.Diagram != "" {
			h.raw(`<div class="diagram">`, b.Diagram, `</div>`)
		}
		if len(b.Options) > 0 {
			h.raw(`<div class="options">`)
			for _, o := range b.Options {
				h.raw(`<div class="option"><span class="letter">`)
				h.text(o.Letter)
				h.raw(`</span><span class="option-text">`)
				h.node(o.Text)
				h.raw(`</span></div>`)
			}
			h.raw(`</div>`)
		}
		if b.WritingArea {
			h.raw(`<div class="writing-area"></div>`)
		}
		h.raw(`</div></div>`)
	case render.BlockAnswer:
		h.raw(`<div class="answer"><div class="a-row"><span class="ordinal">`, fmt.Sprint(b.Ordinal), `.</span><span class="a-value">`)
		h.node(b.Answer)
		h.raw(`</span></div><div class="explanation"><span class="label">`)
		h.text(b.ExplanationLabel)
		h.raw(`</span> `)
		h.node(b.Explanation)
		h.raw(`</div></div>`)
	case render.BlockEndMark:
		h.raw(`<div class="end-mark">`)
		h.text(b.Text)
		h.raw(`</div>`)
	}
}

// mathJax configures MathJax for single-dollar inline math only and flags
// window.examforgeReady once the first typesetting pass is done, or when
// the script cannot be loaded.
const mathJax = `<script>
window.examforgeReady = false;
window.MathJax = {
  tex: {inlineMath: [['$', '$']], displayMath: [], processEscapes: true},
  options: {ignoreHtmlClass: 'tex2jax_ignore'},
  svg: {fontCache: 'global'},
  startup: {
    pageReady: function () {
      return MathJax.startup.defaultPageReady().then(function () { window.examforgeReady = true; });
    }
  }
};
</script>
<script id="MathJax-script" async src="https://cdn.jsdelivr.net/npm/mathjax@3/es5/tex-svg.js" onerror="window.examforgeReady = true"></script>
`

// documentCSS lays the region out at A4 content width: 210mm less 10mm
// margins on both sides.
const documentCSS = `<style>
@page { size: A4 portrait; margin: 10mm; }
.exam { width: 190mm; margin: 0 auto; background: #fff; color: #000; font-family: "Songti SC", "SimSun", "Noto Serif CJK SC", serif; font-size: 11pt; line-height: 1.7; }
.exam-header { text-align: center; border-bottom: 2px solid #000; padding-bottom: 6mm; margin-bottom: 6mm; }
.exam-header h1 { font-size: 20pt; margin: 0 0 3mm; letter-spacing: .05em; }
.exam-header .meta { display: flex; justify-content: center; gap: 8mm; font-size: 10pt; margin-bottom: 4mm; }
.exam-header .identity { display: flex; justify-content: space-between; font-size: 10pt; margin-top: 5mm; }
.section-header h3 { font-size: 13pt; margin: 5mm 0 2mm; border-bottom: 1px solid #ccc; }
.section-desc { font-style: italic; font-size: 10pt; margin: 0 0 3mm; }
.question { display: flex; gap: 2mm; padding: 2mm 0; break-inside: avoid; page-break-inside: avoid; }
.question .ordinal { font-weight: bold; }
.q-body { flex: 1; }
.q-head { display: flex; justify-content: space-between; align-items: flex-start; }
.q-content { flex: 1; text-align: justify; }
.score { font-size: 9pt; font-weight: bold; white-space: nowrap; margin-left: 2mm; }
.diagram { display: flex; justify-content: center; padding: 3mm; }
.options { display: grid; grid-template-columns: 1fr 1fr; gap: 1mm 8mm; margin-top: 1mm; }
.option { display: flex; gap: 2mm; align-items: flex-start; }
.option .letter { width: 5mm; height: 5mm; border: 1px solid #000; border-radius: 50%; display: inline-flex; align-items: center; justify-content: center; font-size: 9pt; flex-shrink: 0; }
.writing-area { height: 20mm; border-bottom: 1px dotted #999; margin-top: 6mm; }
.end-mark { text-align: center; font-size: 9pt; margin: 10mm 0; }
.page-break { break-before: page; page-break-before: always; }
.answer-header { text-align: center; border-bottom: 2px solid #000; padding: 6mm 0 4mm; margin-bottom: 6mm; }
.answer-header h2 { font-size: 16pt; margin: 0; }
.answer-header p { font-size: 10pt; margin: 1mm 0 0; }
.answer-section h3 { font-size: 12pt; border-left: 3px solid #000; padding-left: 3mm; margin: 4mm 0 2mm; }
.answer { font-size: 10pt; padding: 1mm 0 2mm; break-inside: avoid; page-break-inside: avoid; }
.a-row { display: flex; gap: 2mm; align-items: baseline; }
.a-row .ordinal { font-weight: bold; width: 6mm; text-align: right; }
.a-value { font-weight: bold; border: 1px solid #000; padding: 0 2mm; }
.explanation { padding-left: 8mm; text-align: justify; }
.explanation .label { font-weight: bold; font-size: 9pt; }
.math-text { white-space: pre-wrap; overflow-wrap: anywhere; }
.no-print { margin: 4mm auto; width: 190mm; font-family: sans-serif; font-size: 10pt; color: #555; }
@media print { .no-print { display: none; } body { margin: 0; } }
</style>
`

// PrintPage is a standalone page holding only the printable document. With
// autoPrint set it opens the browser's print dialog once math is typeset.
func PrintPage(doc *render.Document, lang, hint string, autoPrint bool) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &htmlWriter{w: w}
		h.raw(`<!DOCTYPE html><html lang="`)
		h.text(lang)
		h.raw(`"><head><meta charset="utf-8"><title>`)
		h.text(doc.Title)
		h.raw(`</title>`, documentCSS, mathJax, `</head><body>`)
		if hint != "" {
			h.raw(`<p class="no-print">`)
			h.text(hint)
			h.raw(`</p>`)
		}
		h.render(ctx, Document(doc))
		if autoPrint {
			h.raw(`<script>
(function () {
  var printed = false;
  function go() { if (!printed) { printed = true; window.print(); } }
  var tries = 0;
  (function wait() {
    if (window.examforgeReady || tries++ > 30) { setTimeout(go, 500); return; }
    setTimeout(wait, 100);
  })();
})();
</script>`)
		}
		h.raw(`</body></html>`)
		return h.err
	})
}
