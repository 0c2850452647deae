package i18n

import "net/http"

// Middleware injects the localizer for lang into every request context and
// declares lang as the response language.
func Middleware(lang string) func(http.Handler) http.Handler {
	loc := NewLocalizer(lang)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Language", lang)
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
