package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/pavelanni/examforge/internal/render"
)

const (
	defaultFontTimeout = 3 * time.Second
	defaultSettle      = 500 * time.Millisecond
)

// readyJS is true once web fonts are loaded and the page has finished its
// first math typesetting pass.
const readyJS = `document.fonts.status === "loaded" && window.examforgeReady === true`

// measureJS reports the region's height, forced breaks and unsplittable
// blocks in CSS pixels relative to the region top.
const measureJS = `(function (sel) {
  var root = document.querySelector(sel);
  if (!root) { return null; }
  var base = root.getBoundingClientRect();
  function span(el) {
    var r = el.getBoundingClientRect();
    return {top: r.top - base.top, bottom: r.bottom - base.top};
  }
  return {
    height: base.height,
    breaks: Array.from(root.querySelectorAll('.page-break')).map(function (el) { return span(el).top; }),
    atomic: Array.from(root.querySelectorAll('.question, .answer')).map(span)
  };
})(%q)`

type measurement struct {
	Height float64   `json:"height"`
	Breaks []float64 `json:"breaks"`
	Atomic []struct {
		Top    float64 `json:"top"`
		Bottom float64 `json:"bottom"`
	} `json:"atomic"`
}

func (m measurement) layout() render.Layout {
	l := render.Layout{Height: m.Height, Breaks: m.Breaks}
	for _, a := range m.Atomic {
		l.Atomic = append(l.Atomic, render.Span{Top: a.Top, Bottom: a.Bottom})
	}
	return l
}

// ChromeCapturer rasterizes regions in headless Chrome.
type ChromeCapturer struct {
	ExecPath    string // empty finds Chrome on PATH
	FontTimeout time.Duration
	Settle      time.Duration
}

func (c *ChromeCapturer) fontTimeout() time.Duration {
	if c.FontTimeout > 0 {
		return c.FontTimeout
	}
	return defaultFontTimeout
}

func (c *ChromeCapturer) settle() time.Duration {
	if c.Settle > 0 {
		return c.Settle
	}
	return defaultSettle
}

// Capture loads the region page, waits for fonts and math up to the font
// timeout, lets layout settle and screenshots the selected element.
func (c *ChromeCapturer) Capture(ctx context.Context, region Region, opts Options) (Capture, error) {
	if region.Selector == "" {
		return Capture{}, errors.New("region selector is empty")
	}
	dir, err := os.MkdirTemp("", "examforge-*")
	if err != nil {
		return Capture{}, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	page := filepath.Join(dir, "region.html")
	if err := os.WriteFile(page, []byte(region.HTML), 0o600); err != nil {
		return Capture{}, fmt.Errorf("write region page: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.WindowSize(1280, 1600))
	if c.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(c.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx, chromedp.Navigate("file://"+page)); err != nil {
		return Capture{}, fmt.Errorf("load region page: %w", err)
	}

	var ready bool
	if err := chromedp.Run(browserCtx, chromedp.Poll(readyJS, &ready, chromedp.WithPollingTimeout(c.fontTimeout()))); err != nil {
		if ctx.Err() != nil {
			return Capture{}, ctx.Err()
		}
		slog.Warn("fonts not ready, capturing anyway", "timeout", c.fontTimeout(), "error", err)
	}

	var (
		m   *measurement
		buf []byte
	)
	err = chromedp.Run(browserCtx,
		chromedp.Sleep(c.settle()),
		chromedp.Evaluate(fmt.Sprintf(measureJS, region.Selector), &m),
		chromedp.ScreenshotScale(region.Selector, opts.Scale, &buf, chromedp.ByQuery),
	)
	if err != nil {
		return Capture{}, fmt.Errorf("screenshot region: %w", err)
	}
	if m == nil {
		return Capture{}, fmt.Errorf("region %s not found", region.Selector)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return Capture{}, fmt.Errorf("decode screenshot: %w", err)
	}
	slog.Debug("captured region", "selector", region.Selector, "width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "blocks", len(m.Atomic))
	return Capture{Image: img, Layout: m.layout()}, nil
}
