package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/quartzlabs/apphub/pkg/httputil"
	"github.com/quartzlabs/apphub/pkg/observability"
)

// Recovery converts handler panics into 500 responses and logs the stack
// so one bad request cannot take the process down.
func Recovery(log *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if log != nil {
						log.WithFields(map[string]interface{}{
							"panic": rec,
							"stack": string(debug.Stack()),
							"path":  r.URL.Path,
						}).Error("panic recovered")
					}
					httputil.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
