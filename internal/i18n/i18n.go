// Package i18n serves the interface and printed-document strings in the
// configured language.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

// catalog is the loaded bundle and the language used when a context
// carries no localizer.
var catalog struct {
	bundle *i18n.Bundle
	lang   string
}

// Init loads every embedded locale and makes lang the default. lang must
// have a locale file.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	files, err := fs.Glob(localeFS, "locales/*.json")
	if err != nil {
		return fmt.Errorf("list locales: %w", err)
	}
	supported := false
	for _, name := range files {
		mf, err := bundle.LoadMessageFileFS(localeFS, name)
		if err != nil {
			return fmt.Errorf("load locale %s: %w", name, err)
		}
		if mf.Tag == tag {
			supported = true
		}
		slog.Debug("loaded locale file", "file", name, "messages", len(mf.Messages))
	}
	if !supported {
		return fmt.Errorf("no locale for language %q", lang)
	}

	catalog.bundle, catalog.lang = bundle, lang
	return nil
}

// NewLocalizer creates a localizer for the given language.
func NewLocalizer(lang string) *i18n.Localizer {
	return i18n.NewLocalizer(catalog.bundle, lang)
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// Background returns a context carrying the default-language localizer,
// for callers outside an HTTP request.
func Background() context.Context {
	return WithLocalizer(context.Background(), NewLocalizer(catalog.lang))
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message by ID.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

// localize falls back to the message ID when no translation exists.
func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer)
	if !ok {
		loc = NewLocalizer(catalog.lang)
	}
	s, err := loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}
