package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tendant/user-switching/pkg/client"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(h http.Handler, path, remoteAddr string, u *client.AuthUser, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	for k, v := range header {
		req.Header.Set(k, v)
	}
	if u != nil {
		req = req.WithContext(client.WithIdentity(req.Context(), u))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewarePerIP(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerIPCapacity = 2
	cfg.PerIPRefillRate = 0
	h := NewMiddleware(cfg).Handler(okHandler())

	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.1:1234", nil, nil).Code)
	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.1:1235", nil, nil).Code)

	rec := request(h, "/switch", "10.0.0.1:1236", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"type":"ip"`)

	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.2:1234", nil, nil).Code)
}

func TestMiddlewarePerUser(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerIPEnabled = false
	cfg.PerUserCapacity = 1
	cfg.PerUserRefillRate = 0
	h := NewMiddleware(cfg).Handler(okHandler())

	admin := &client.AuthUser{UserId: "1"}
	rec := request(h, "/switch", "10.0.0.1:1", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Limit-User"))

	rec = request(h, "/switch", "10.0.0.2:1", admin, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"user"`)

	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.1:1", &client.AuthUser{UserId: "2"}, nil).Code)
	// anonymous requests are not counted per user
	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.1:1", nil, nil).Code)
}

func TestMiddlewareEndpointLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EndpointLimits["GET /switch"] = EndpointLimit{Capacity: 1, RefillRate: 0}
	h := NewMiddleware(cfg).Handler(okHandler())

	assert.Equal(t, http.StatusOK, request(h, "/switch", "10.0.0.1:1", nil, nil).Code)
	rec := request(h, "/switch", "10.0.0.1:1", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"endpoint"`)

	assert.Equal(t, http.StatusOK, request(h, "/switch/state", "10.0.0.1:1", nil, nil).Code)
}

func TestClientIP(t *testing.T) {
	header := map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", header["X-Forwarded-For"])

	untrusted := NewMiddleware(DefaultConfig())
	assert.Equal(t, "10.0.0.1", untrusted.clientIP(req))

	cfg := DefaultConfig()
	cfg.TrustProxyHeaders = true
	trusted := NewMiddleware(cfg)
	assert.Equal(t, "203.0.113.7", trusted.clientIP(req))

	req.Header.Del("X-Forwarded-For")
	req.Header.Set("X-Real-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", trusted.clientIP(req))
}

func TestReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerIPCapacity = 1
	cfg.PerIPRefillRate = 0
	m := NewMiddleware(cfg)
	h := m.Handler(okHandler())

	request(h, "/", "10.0.0.9:1", nil, nil)
	assert.Equal(t, http.StatusTooManyRequests, request(h, "/", "10.0.0.9:1", nil, nil).Code)

	m.Reset("10.0.0.9")
	assert.Equal(t, http.StatusOK, request(h, "/", "10.0.0.9:1", nil, nil).Code)
	assert.Contains(t, m.GetStats(), "ip")
}
