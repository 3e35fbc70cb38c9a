// Package middleware provides HTTP middleware for the apphub API.
package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/quartzlabs/apphub/pkg/contextkeys"
	"github.com/quartzlabs/apphub/pkg/httputil"
)

// PrincipalHeader carries the authenticated caller's user id, set by the
// authenticating proxy in front of this service.
const PrincipalHeader = "X-Apphub-User-Id"

// Principal extracts the caller's user id from the request header and
// stores it in the request context. Requests without a valid principal
// are rejected with 401.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(PrincipalHeader)
		if raw == "" {
			httputil.WriteUnauthorized(w, "missing principal header")
			return
		}
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			httputil.WriteUnauthorized(w, "invalid principal header")
			return
		}

		ctx := context.WithValue(r.Context(), contextkeys.PrincipalKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalFromContext returns the caller's user id stored by Principal.
func PrincipalFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(contextkeys.PrincipalKey).(int64)
	return userID, ok
}

// RequestID assigns each request a UUID and echoes it in the response,
// keeping a caller-provided one when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		ctx := context.WithValue(r.Context(), contextkeys.RequestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
