package ingest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageOptions controls how raster uploads are downscaled and re-encoded.
type ImageOptions struct {
	MaxDimension int // longer edge ceiling in pixels
	Quality      int // JPEG quality, 1-100
}

// DefaultImageOptions keeps text on scanned exam pages legible while
// bounding the request size.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{MaxDimension: 1500, Quality: 70}
}

// FitWithin returns the dimensions of a w×h image scaled so its longer edge
// is at most maxDim. Images that already fit are returned unchanged.
func FitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(1, int(math.Round(float64(h)*float64(maxDim)/float64(w))))
	}
	return max(1, int(math.Round(float64(w)*float64(maxDim)/float64(h)))), maxDim
}

// Compress decodes data, scales it down to fit MaxDimension, flattens it onto
// white and encodes it as JPEG.
func (o ImageOptions) Compress(data []byte) ([]byte, string, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), o.MaxDimension)
	if w <= 0 || h <= 0 {
		return nil, "", fmt.Errorf("empty image %dx%d", b.Dx(), b.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	}

	quality := o.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultImageOptions().Quality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}
