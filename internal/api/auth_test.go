package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"loyaltybot/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestHTTPAuth(t *testing.T) {
	auth := NewHTTPAuth(config.HTTPConfig{APIKey: "secret", RPS: 100, Burst: 200})
	handler := auth.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"HeaderKey", "/api/v1/stats", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"BearerToken", "/api/v1/stats", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"MissingKey", "/api/v1/stats", nil, http.StatusUnauthorized},
		{"WrongKey", "/api/v1/stats", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"HealthIsOpen", "/healthz", nil, http.StatusOK},
		{"MetricsIsOpen", "/metrics", nil, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHTTPAuth_NoKeyConfigured(t *testing.T) {
	auth := NewHTTPAuth(config.HTTPConfig{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", http.NoBody)
	assert.NoError(t, auth.checkAuth(req))
}

func TestClientKey(t *testing.T) {
	auth := NewHTTPAuth(config.HTTPConfig{})

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1", auth.clientKey(req))

	req.Header.Set("X-API-Key", "abc")
	assert.Equal(t, "key:abc", auth.clientKey(req))

	req = httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "garbage"
	assert.Equal(t, clientKeyUnknown, auth.clientKey(req))
}

func TestRateLimiter(t *testing.T) {
	l := newRateLimiter(1, 1)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"), "limits are per client")

	unlimited := newRateLimiter(0, 0)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.allow("a"))
	}
}
