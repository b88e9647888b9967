package i18n

import "net/http"

// Middleware injects a localizer matching the request's Accept-Language into
// every request context, falling back to the language passed to Init.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := Match(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Language", lang)
		ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
