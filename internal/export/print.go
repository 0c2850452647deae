package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Printer hands a self-printing page to the host and reports where it is.
type Printer interface {
	Print(ctx context.Context, page []byte, name string) (string, error)
}

var errEmptyPage = errors.New("print page is empty")

// InlinePrinter leaves delivery to the caller, which serves Result.Data
// directly, e.g. as an HTTP response the browser prints.
type InlinePrinter struct{}

func (InlinePrinter) Print(_ context.Context, page []byte, _ string) (string, error) {
	if len(page) == 0 {
		return "", errEmptyPage
	}
	return "", nil
}

// FilePrinter writes the print page into Dir for the user to open.
type FilePrinter struct {
	Dir string
}

func (p FilePrinter) Print(_ context.Context, page []byte, name string) (string, error) {
	if len(page) == 0 {
		return "", errEmptyPage
	}
	path := filepath.Join(p.Dir, filepath.Base(name))
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return "", fmt.Errorf("write print page: %w", err)
	}
	return path, nil
}
