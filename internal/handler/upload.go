package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pavelanni/examforge/internal/handler/views"
	appI18n "github.com/pavelanni/examforge/internal/i18n"
	"github.com/pavelanni/examforge/internal/ingest"
)

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.generating.TryLock() {
		h.renderMessage(w, r, http.StatusConflict, appI18n.T(ctx, "GenerationBusy"))
		return
	}
	defer h.generating.Unlock()

	files, skipped, err := readUpload(r, maxBatchBytes)
	if err != nil {
		slog.Warn("failed to read upload", "error", err)
		http.Error(w, err.Error(), partStatus(err))
		return
	}

	batch := h.app.Ingest(ctx, files)
	var notices []string
	for _, fe := range append(skipped, batch.Failures...) {
		notices = append(notices, appI18n.Td(ctx, "FileSkipped", map[string]any{
			"Name":   fe.Name,
			"Reason": fe.Err.Error(),
		}))
	}
	if len(batch.Assets) == 0 {
		h.renderHome(w, r, http.StatusBadRequest, views.HomeData{
			Notices: notices,
			Error:   appI18n.T(ctx, "NoFiles"),
		})
		return
	}

	exam, err := h.app.Generate(ctx, batch.Assets)
	if err != nil {
		h.renderHome(w, r, http.StatusBadGateway, views.HomeData{
			Notices: notices,
			Error:   appI18n.Td(ctx, "GenerationFailed", map[string]any{"Reason": err.Error()}),
		})
		return
	}

	slog.Info("generated exam via upload", "id", exam.ID, "files", len(files)+len(skipped), "skipped", len(skipped)+len(batch.Failures))
	h.renderPreview(w, r, http.StatusOK, exam, notices)
}

// readUpload streams the "files" parts of a multipart upload. A part over
// the per-file cap, or one that would push the kept total over limit, is
// drained and reported as skipped instead of failing the request.
func readUpload(r *http.Request, limit int64) ([]ingest.File, []*ingest.FileError, error) {
	mr := uploadReader(r.Context())
	if mr == nil {
		return nil, nil, errors.New("invalid upload")
	}

	var (
		files   []ingest.File
		skipped []*ingest.FileError
		kept    int64
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, skipped, nil
		}
		if err != nil {
			return nil, nil, err
		}
		if part.FormName() != "files" || part.FileName() == "" {
			if _, err := io.Copy(io.Discard, part); err != nil {
				return nil, nil, err
			}
			continue
		}

		name := part.FileName()
		data, err := io.ReadAll(io.LimitReader(part, ingest.MaxFileSize+1))
		if err != nil {
			return nil, nil, err
		}
		switch {
		case len(data) > ingest.MaxFileSize:
			rest, err := io.Copy(io.Discard, part)
			if err != nil {
				return nil, nil, err
			}
			size := int64(len(data)) + rest
			skipped = append(skipped, &ingest.FileError{Name: name, Err: fmt.Errorf("%w: %d bytes exceeds %d MiB", ingest.ErrTooLarge, size, ingest.MaxFileSize>>20)})
		case kept+int64(len(data)) > limit:
			skipped = append(skipped, &ingest.FileError{Name: name, Err: fmt.Errorf("%w: upload exceeds %d MiB in total", ingest.ErrTooLarge, limit>>20)})
		default:
			kept += int64(len(data))
			files = append(files, ingest.FromBytes(name, part.Header.Get("Content-Type"), data))
		}
	}
}
