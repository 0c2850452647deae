package views

import (
	"context"
	"strings"

	"github.com/pavelanni/examforge/internal/export"
	"github.com/pavelanni/examforge/internal/render"
)

// ExportRegion renders doc twice: a plain page for capture and a
// self-printing page for the print fallback.
func ExportRegion(ctx context.Context, doc *render.Document, lang, hint string) (export.Region, error) {
	var capture, printable strings.Builder
	if err := PrintPage(doc, lang, "", false).Render(ctx, &capture); err != nil {
		return export.Region{}, err
	}
	if err := PrintPage(doc, lang, hint, true).Render(ctx, &printable); err != nil {
		return export.Region{}, err
	}
	return export.Region{
		HTML:      capture.String(),
		Selector:  PrintableSelector,
		PrintHTML: printable.String(),
	}, nil
}
