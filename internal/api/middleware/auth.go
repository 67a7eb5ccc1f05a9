package middleware

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const callerContextKey contextKey = "caller"

// CallerFromContext returns a stable, non-secret identifier for the API key
// that authenticated the request, or "" when auth is disabled.
func CallerFromContext(ctx context.Context) string {
	c, _ := ctx.Value(callerContextKey).(string)
	return c
}

// APIKeyAuth accepts requests bearing one of keys. With no keys configured
// every request passes through unauthenticated.
func APIKeyAuth(keys []string) func(http.Handler) http.Handler {
	hashes := make([][]byte, 0, len(keys))
	for _, k := range keys {
		h := sha256.Sum256([]byte(k))
		hashes = append(hashes, h[:])
	}

	return func(next http.Handler) http.Handler {
		if len(hashes) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			got := sha256.Sum256([]byte(parts[1]))
			matched := 0
			for _, h := range hashes {
				matched |= subtle.ConstantTimeCompare(got[:], h)
			}
			if matched != 1 {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), callerContextKey, hex.EncodeToString(got[:6]))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
