package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Auth guards the status API with a single shared key. Clients send it as
// "Authorization: Bearer <key>" or in X-API-Key. Paths listed in open skip
// the check; an empty apiKey disables it entirely.
func Auth(apiKey string, open ...string) func(http.Handler) http.Handler {
	if apiKey == "" {
		return func(next http.Handler) http.Handler { return next }
	}

	want := sha256.Sum256([]byte(apiKey))
	public := make(map[string]struct{}, len(open))
	for _, p := range open {
		public[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			presented, reason := presentedKey(r)
			if reason != "" {
				deny(w, reason)
				return
			}
			// Digests have equal length, so the comparison time does not
			// depend on the presented key's length.
			got := sha256.Sum256([]byte(presented))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				deny(w, "api key rejected")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// presentedKey returns the key the request carries, or a reason it carries
// none usable. An Authorization header with another scheme is rejected
// rather than falling through to X-API-Key.
func presentedKey(r *http.Request) (key, reason string) {
	if authz := r.Header.Get("Authorization"); authz != "" {
		scheme, value, _ := strings.Cut(authz, " ")
		if !strings.EqualFold(scheme, "Bearer") {
			return "", "unsupported authorization scheme"
		}
		if value = strings.TrimSpace(value); value == "" {
			return "", "empty bearer token"
		}
		return value, ""
	}
	if key = strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, ""
	}
	return "", "api key required"
}

func deny(w http.ResponseWriter, reason string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("WWW-Authenticate", `Bearer realm="polyladder"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": reason})
}
