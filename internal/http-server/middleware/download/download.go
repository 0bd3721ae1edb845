// Package download lifts the server write timeout for handlers whose
// responses can take longer than an API call, such as recording files.
package download

import (
	"net/http"
	"time"
)

// NoWriteTimeout clears the connection write deadline before calling next.
func NoWriteTimeout(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// recorders and other wrappers without deadline support are fine
		_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

		next.ServeHTTP(w, r)
	})
}
