package handler

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/pavelanni/examforge/internal/model"
)

const (
	csrfCookieName = "csrf_token"
	csrfFieldName  = "csrf_token"
)

type uploadKey struct{}

// uploadReader returns the multipart stream left after the CSRF field.
func uploadReader(ctx context.Context) *multipart.Reader {
	mr, _ := ctx.Value(uploadKey{}).(*multipart.Reader)
	return mr
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func (h *Handler) setCSRFCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     h.path("/"),
		HttpOnly: false,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// csrfMiddleware issues a double-submit token on safe requests and checks
// it on everything else. Each accepted form rotates the token. Multipart
// bodies are streamed: the token must be the first part, and the rest of
// the stream is handed to the handler through the request context.
func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			mr, status, err := checkCSRF(r)
			if err != nil {
				slog.Warn("CSRF check failed", "path", r.URL.Path, "error", err)
				http.Error(w, err.Error(), status)
				return
			}
			if mr != nil {
				r = r.WithContext(context.WithValue(r.Context(), uploadKey{}, mr))
			}
		}

		token, err := generateCSRFToken()
		if err != nil {
			slog.Error("failed to generate CSRF token", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		h.setCSRFCookie(w, token)
		ctx := model.ContextWithCSRFToken(r.Context(), token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func checkCSRF(r *http.Request) (*multipart.Reader, int, error) {
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil || cookie.Value == "" {
		return nil, http.StatusForbidden, errors.New("csrf token missing")
	}

	var formToken string
	var mr *multipart.Reader
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		mr, err = r.MultipartReader()
		if err != nil {
			return nil, http.StatusBadRequest, errors.New("invalid upload")
		}
		part, err := mr.NextPart()
		if err != nil {
			return nil, partStatus(err), errors.New("csrf token missing")
		}
		if part.FormName() == csrfFieldName {
			b, err := io.ReadAll(io.LimitReader(part, 256))
			if err != nil {
				return nil, partStatus(err), errors.New("invalid upload")
			}
			formToken = string(b)
		}
	} else {
		formToken = r.FormValue(csrfFieldName)
	}

	if formToken == "" {
		return nil, http.StatusForbidden, errors.New("csrf token missing")
	}
	if len(formToken) != len(cookie.Value) || subtle.ConstantTimeCompare([]byte(formToken), []byte(cookie.Value)) != 1 {
		return nil, http.StatusForbidden, errors.New("invalid csrf token")
	}
	return mr, 0, nil
}

// partStatus maps a multipart read error to a response status.
func partStatus(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, io.EOF):
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}
