package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_Credentials(t *testing.T) {
	h := Auth("secret", "/api/health")(okHandler())

	cases := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		reason  string
	}{
		{name: "open path", path: "/api/health", status: http.StatusOK},
		{name: "missing", path: "/api/status", status: http.StatusUnauthorized, reason: "api key required"},
		{name: "bearer", path: "/api/status", headers: map[string]string{"Authorization": "Bearer secret"}, status: http.StatusOK},
		{name: "bearer lowercase scheme", path: "/api/status", headers: map[string]string{"Authorization": "bearer secret"}, status: http.StatusOK},
		{name: "x-api-key", path: "/api/status", headers: map[string]string{"X-API-Key": " secret "}, status: http.StatusOK},
		{name: "wrong key", path: "/api/status", headers: map[string]string{"X-API-Key": "secrets"}, status: http.StatusUnauthorized, reason: "api key rejected"},
		{name: "basic scheme", path: "/api/status", headers: map[string]string{"Authorization": "Basic c2VjcmV0", "X-API-Key": "secret"}, status: http.StatusUnauthorized, reason: "unsupported authorization scheme"},
		{name: "empty bearer", path: "/api/status", headers: map[string]string{"Authorization": "Bearer  "}, status: http.StatusUnauthorized, reason: "empty bearer token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.reason == "" {
				return
			}
			assert.Equal(t, `Bearer realm="polyladder"`, rec.Header().Get("WWW-Authenticate"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tc.reason, body["error"])
		})
	}
}

func TestAuth_EmptyKeyDisablesCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
