package middleware

import (
	"net/http"
	"strconv"
	"time"
)

// PollHints marks a read response as uncacheable and tells the client how
// often to poll it. X-Served-At lets a dashboard show how stale its view is.
func PollHints(interval time.Duration) func(http.Handler) http.Handler {
	secs := strconv.Itoa(int(interval.Round(time.Second) / time.Second))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Cache-Control", "no-store")
			h.Set("X-Poll-Interval", secs)
			h.Set("X-Served-At", time.Now().UTC().Format(time.RFC3339Nano))
			next.ServeHTTP(w, r)
		})
	}
}
