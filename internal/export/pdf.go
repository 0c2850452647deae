package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"github.com/go-pdf/fpdf"
	"golang.org/x/image/draw"

	"github.com/pavelanni/examforge/internal/render"
)

// Slices maps the pages of capture to pixel rows of its image. The page
// height is the content box of opts scaled to the image width.
func Slices(capture Capture, opts Options) ([]image.Rectangle, error) {
	if capture.Image == nil {
		return nil, errors.New("capture has no image")
	}
	b := capture.Image.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("capture image is empty")
	}
	if opts.contentWidth() <= 0 || opts.contentHeight() <= 0 {
		return nil, fmt.Errorf("margins %vmm leave no content area", opts.MarginMM)
	}

	layout := capture.Layout
	if layout.Height <= 0 {
		layout = render.Layout{Height: float64(b.Dy())}
	}
	// Pixels per layout unit.
	k := float64(b.Dy()) / layout.Height
	pagePx := float64(b.Dx()) * opts.contentHeight() / opts.contentWidth()

	var rects []image.Rectangle
	for _, span := range render.Paginate(layout, pagePx/k) {
		top := int(math.Round(span.Top * k))
		bottom := min(int(math.Round(span.Bottom*k)), b.Dy())
		if bottom <= top {
			continue
		}
		rects = append(rects, image.Rect(b.Min.X, b.Min.Y+top, b.Max.X, b.Min.Y+bottom))
	}
	return rects, nil
}

// Assemble slices capture into pages and lays them out as a PDF, one JPEG
// per page placed at the top-left margin at full content width.
func Assemble(capture Capture, opts Options, title string) ([]byte, int, error) {
	rects, err := Slices(capture, opts)
	if err != nil {
		return nil, 0, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: opts.PageWidthMM, Ht: opts.PageHeightMM},
	})
	pdf.SetMargins(opts.MarginMM, opts.MarginMM, opts.MarginMM)
	pdf.SetAutoPageBreak(false, opts.MarginMM)
	pdf.SetTitle(title, true)
	pdf.SetCreator("examforge", true)

	width := opts.contentWidth()
	for i, r := range rects {
		jpg, err := encodeSlice(capture.Image, r, opts.JPEGQuality)
		if err != nil {
			return nil, 0, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		name := fmt.Sprintf("page-%d", i+1)
		imgOpts := fpdf.ImageOptions{ImageType: "JPG"}
		pdf.AddPage()
		pdf.RegisterImageOptionsReader(name, imgOpts, bytes.NewReader(jpg))
		height := width * float64(r.Dy()) / float64(r.Dx())
		pdf.ImageOptions(name, opts.MarginMM, opts.MarginMM, width, height, false, imgOpts, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), len(rects), nil
}

func encodeSlice(src image.Image, r image.Rectangle, quality int) ([]byte, error) {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
