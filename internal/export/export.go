// Package export turns a rendered exam region into an A4 PDF, or into a
// print page when the region cannot be rasterized.
package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavelanni/examforge/internal/render"
)

// ErrNoCapturer is the capture failure reported when no rasterizer is
// configured.
var ErrNoCapturer = errors.New("no capturer configured")

// Region is a standalone HTML page holding the printable region.
type Region struct {
	HTML      string
	Selector  string // CSS selector of the printable element
	PrintHTML string // page handed to the print fallback; HTML when empty
}

// Options fix the page geometry and raster quality.
type Options struct {
	Scale        float64 // supersampling factor of the screenshot
	PageWidthMM  float64
	PageHeightMM float64
	MarginMM     float64 // applied on all four sides
	JPEGQuality  int
}

// DefaultOptions is A4 portrait with 10mm margins at 3x supersampling.
func DefaultOptions() Options {
	return Options{
		Scale:        3,
		PageWidthMM:  210,
		PageHeightMM: 297,
		MarginMM:     10,
		JPEGQuality:  98,
	}
}

func (o Options) contentWidth() float64  { return o.PageWidthMM - 2*o.MarginMM }
func (o Options) contentHeight() float64 { return o.PageHeightMM - 2*o.MarginMM }

// Capture is a rasterized region plus the layout measured while rendering it.
// Layout is in the renderer's units; the image may be scaled against it.
type Capture struct {
	Image  image.Image
	Layout render.Layout
}

// Capturer rasterizes a region.
type Capturer interface {
	Capture(ctx context.Context, region Region, opts Options) (Capture, error)
}

// Sink stores an exported file and returns where it went.
type Sink interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// ResultKind tells which path produced the output.
type ResultKind string

const (
	ResultFile    ResultKind = "file"
	ResultPrinted ResultKind = "printed"
)

// Result is the output of an export. Data holds the PDF for ResultFile and
// the print page for ResultPrinted.
type Result struct {
	Kind     ResultKind
	Name     string
	Data     []byte
	Pages    int
	Location string
	Fallback error // why the file path was abandoned
}

// ContentType returns the MIME type of r.Data.
func (r Result) ContentType() string {
	if r.Kind == ResultFile {
		return "application/pdf"
	}
	return "text/html; charset=utf-8"
}

// Error is returned only when both the file path and the print fallback
// failed.
type Error struct {
	Capture error
	Print   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("export: %v; print fallback: %v", e.Capture, e.Print)
}

func (e *Error) Unwrap() []error { return []error{e.Capture, e.Print} }

// Exporter runs the export pipeline. A nil Capturer sends every export to
// the print path; a nil Printer returns the print page inline.
type Exporter struct {
	Capturer Capturer
	Printer  Printer
	Sink     Sink
	Options  Options
}

// New returns an exporter with default options.
func New(capturer Capturer, printer Printer, sink Sink) *Exporter {
	return &Exporter{Capturer: capturer, Printer: printer, Sink: sink, Options: DefaultOptions()}
}

// Export produces fileName from region. Capture or assembly failures fall
// back to the print path; an error is returned only if that fails too.
func (e *Exporter) Export(ctx context.Context, region Region, fileName string) (Result, error) {
	res, err := e.exportFile(ctx, region, fileName)
	if err == nil {
		return res, nil
	}
	// A cancelled caller has no one left to receive a print page.
	if ctx.Err() != nil {
		return Result{}, &Error{Capture: err, Print: ctx.Err()}
	}
	slog.Warn("export failed, falling back to print", "file", fileName, "error", err)

	printed, perr := e.print(ctx, region, fileName)
	if perr != nil {
		return Result{}, &Error{Capture: err, Print: perr}
	}
	printed.Fallback = err
	return printed, nil
}

func (e *Exporter) exportFile(ctx context.Context, region Region, fileName string) (Result, error) {
	if e.Capturer == nil {
		return Result{}, ErrNoCapturer
	}
	start := time.Now()
	capture, err := e.Capturer.Capture(ctx, region, e.Options)
	if err != nil {
		return Result{}, fmt.Errorf("capture region: %w", err)
	}
	data, pages, err := Assemble(capture, e.Options, fileName)
	if err != nil {
		return Result{}, fmt.Errorf("assemble pdf: %w", err)
	}
	slog.Info("exported pdf", "file", fileName, "pages", pages, "bytes", len(data), "elapsed", time.Since(start))

	res := Result{Kind: ResultFile, Name: fileName, Data: data, Pages: pages}
	if e.Sink != nil {
		loc, err := e.Sink.Put(ctx, fileName, res.ContentType(), data)
		if err != nil {
			slog.Warn("store exported file", "file", fileName, "error", err)
		} else {
			res.Location = loc
		}
	}
	return res, nil
}

func (e *Exporter) print(ctx context.Context, region Region, fileName string) (Result, error) {
	page := region.PrintHTML
	if page == "" {
		page = region.HTML
	}
	printer := e.Printer
	if printer == nil {
		printer = InlinePrinter{}
	}
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName)) + ".html"
	loc, err := printer.Print(ctx, []byte(page), name)
	if err != nil {
		return Result{}, err
	}
	return Result{Kind: ResultPrinted, Name: name, Data: []byte(page), Location: loc}, nil
}
