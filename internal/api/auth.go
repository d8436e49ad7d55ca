package api

import (
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"

	"loyaltybot/internal/config"
)

const (
	apiKeyHeader     = "X-API-Key"
	clientKeyUnknown = "unknown"
	protectedPrefix  = "/api/"
)

var (
	errMissingAPIKey = errors.New("missing api key")
	errInvalidAPIKey = errors.New("invalid api key")
)

// HTTPAuth checks the API key on /api/ routes and rate limits every route per client.
type HTTPAuth struct {
	cfg     config.HTTPConfig
	limiter *rateLimiter
}

func NewHTTPAuth(cfg config.HTTPConfig) *HTTPAuth {
	return &HTTPAuth{cfg: cfg, limiter: newRateLimiter(cfg.RPS, cfg.Burst)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, protectedPrefix) {
			if err := a.checkAuth(r); err != nil {
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}
		}

		if !a.limiter.allow(a.clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// checkAuth accepts X-API-Key or a bearer token. An empty configured key disables the check.
func (a *HTTPAuth) checkAuth(r *http.Request) error {
	if a.cfg.APIKey == "" {
		return nil
	}
	key := presentedKey(r)
	if key == "" {
		return errMissingAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(key), []byte(a.cfg.APIKey)) != 1 {
		return errInvalidAPIKey
	}
	return nil
}

func presentedKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(apiKeyHeader)); key != "" {
		return key
	}
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func (a *HTTPAuth) clientKey(r *http.Request) string {
	if key := presentedKey(r); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}
