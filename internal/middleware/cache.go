package middleware

import (
	"net/http"
)

// NoStore disables response caching across the board. Survey dashboards poll
// the same URLs for fresh counts and respondents reopen share links, so a
// cached intermediary serving stale JSON is worse than the extra requests.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}
