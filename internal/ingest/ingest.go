// Package ingest normalizes uploaded reference files into assets that can be
// sent to the exam generator.
package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/pavelanni/examforge/internal/model"
)

// MaxFileSize is the per-file upload ceiling.
const MaxFileSize = 50 << 20

var (
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
	ErrReadFailure     = errors.New("file read failed")
)

// FileError reports why a single file in a batch was rejected.
type FileError struct {
	Name string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// File is one raw upload. MimeType may be empty, in which case the content is sniffed.
type File struct {
	Name     string
	MimeType string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// FromPath describes a file on disk. The MIME type is left for sniffing.
func FromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, err
	}
	return File{
		Name: filepath.Base(path),
		Size: info.Size(),
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}, nil
}

// FromBytes describes an in-memory file.
func FromBytes(name, mimeType string, data []byte) File {
	return File{
		Name:     name,
		MimeType: mimeType,
		Size:     int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Normalizer converts raw uploads into assets.
type Normalizer struct {
	// Workers bounds the number of files processed at once in a batch.
	Workers int
	// Images handles raster inputs.
	Images ImageOptions
}

// New returns a Normalizer with the default image pipeline.
func New() *Normalizer {
	return &Normalizer{Workers: 4, Images: DefaultImageOptions()}
}

// Normalize reads and converts a single file.
func (n *Normalizer) Normalize(ctx context.Context, f File) (model.UploadedAsset, error) {
	if f.Size > MaxFileSize {
		return model.UploadedAsset{}, &FileError{Name: f.Name, Err: fmt.Errorf("%w: %d bytes exceeds %d MiB", ErrTooLarge, f.Size, MaxFileSize>>20)}
	}
	if err := ctx.Err(); err != nil {
		return model.UploadedAsset{}, &FileError{Name: f.Name, Err: fmt.Errorf("%w: %v", ErrReadFailure, err)}
	}

	data, err := readLimited(f)
	if err != nil {
		return model.UploadedAsset{}, &FileError{Name: f.Name, Err: err}
	}

	mediaType := detectType(f.MimeType, data)
	asset := model.UploadedAsset{
		ID:          uuid.NewString(),
		DisplayName: f.Name,
		MimeType:    mediaType,
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"):
		asset.Kind = model.AssetImage
		out, outType, err := n.Images.Compress(data)
		if err != nil {
			slog.Warn("image compression failed, keeping original", "file", f.Name, "error", err)
			out, outType = data, mediaType
		}
		asset.MimeType = outType
		asset.Payload = dataURL(outType, out)
	case mediaType == "application/pdf":
		asset.Kind = model.AssetDocument
		asset.Payload = dataURL(mediaType, data)
	case mediaType == "text/plain":
		asset.Kind = model.AssetText
		asset.Payload = decodeText(data)
	default:
		return model.UploadedAsset{}, &FileError{Name: f.Name, Err: fmt.Errorf("%w: %s", ErrUnsupportedType, mediaType)}
	}
	return asset, nil
}

// BatchResult holds the outcome of a batch. Assets keep submission order.
type BatchResult struct {
	Assets   []model.UploadedAsset
	Failures []*FileError
}

// NormalizeBatch normalizes each file independently. A failing file is
// reported in Failures and never affects its siblings.
func (n *Normalizer) NormalizeBatch(ctx context.Context, files []File) BatchResult {
	type result struct {
		index int
		asset model.UploadedAsset
		err   error
	}

	workers := n.Workers
	if workers <= 0 {
		workers = 1
	}
	results := make(chan result, len(files))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(i int, f File) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			asset, err := n.Normalize(ctx, f)
			results <- result{index: i, asset: asset, err: err}
		}(i, f)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	collected := make([]result, len(files))
	for res := range results {
		collected[res.index] = res
	}

	var out BatchResult
	for i, res := range collected {
		if res.err != nil {
			var fe *FileError
			if !errors.As(res.err, &fe) {
				fe = &FileError{Name: files[i].Name, Err: res.err}
			}
			slog.Warn("skipping file", "file", fe.Name, "error", fe.Err)
			out.Failures = append(out.Failures, fe)
			continue
		}
		out.Assets = append(out.Assets, res.asset)
	}
	return out
}

func readLimited(f File) ([]byte, error) {
	if f.Open == nil {
		return nil, fmt.Errorf("%w: no content", ErrReadFailure)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	defer rc.Close()
	// Read one byte past the limit so an understated Size is still caught.
	data, err := io.ReadAll(io.LimitReader(rc, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailure, err)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: exceeds %d MiB", ErrTooLarge, MaxFileSize>>20)
	}
	return data, nil
}

// detectType prefers the declared media type and sniffs the content when
// the declaration is missing or generic.
func detectType(declared string, data []byte) string {
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return strings.ToLower(mt)
		}
	}
	mt := mimetype.Detect(data)
	for m := mt; m != nil; m = m.Parent() {
		switch {
		case m.Is("text/plain"):
			return "text/plain"
		case m.Is("application/pdf"):
			return "application/pdf"
		case strings.HasPrefix(m.String(), "image/"):
			base, _, _ := strings.Cut(m.String(), ";")
			return base
		}
	}
	base, _, _ := strings.Cut(mt.String(), ";")
	return base
}

func decodeText(data []byte) string {
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "\ufffd")
	}
	return string(data)
}

func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SplitDataURL returns the media type and base64 body of a data URL payload.
func SplitDataURL(payload string) (mimeType, body string, ok bool) {
	rest, found := strings.CutPrefix(payload, "data:")
	if !found {
		return "", "", false
	}
	header, body, found := strings.Cut(rest, ",")
	if !found {
		return "", "", false
	}
	mimeType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return "", "", false
	}
	return mimeType, body, true
}
