package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/go-chi/render"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/errors"
)

// Config holds rate limiting configuration
type Config struct {
	GlobalEnabled    bool
	GlobalCapacity   int     // Max burst
	GlobalRefillRate float64 // Requests per second

	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64

	// Per-user limits apply to requests carrying an identity.
	PerUserEnabled    bool
	PerUserCapacity   int
	PerUserRefillRate float64

	// EndpointLimits is keyed by "METHOD /path" and counted per client IP.
	EndpointLimits map[string]EndpointLimit

	// BucketTTL is how long an idle bucket is kept.
	BucketTTL time.Duration
	MaxKeys   int

	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxyHeaders bool

	IncludeHeaders bool
}

// EndpointLimit defines rate limits for a specific endpoint
type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// DefaultConfig returns the defaults. Endpoint limits depend on where the
// handlers are mounted, so callers add them.
func DefaultConfig() *Config {
	return &Config{
		// Global: 1000 requests per minute
		GlobalEnabled:    true,
		GlobalCapacity:   1000,
		GlobalRefillRate: 1000.0 / 60.0,

		// Per-IP: 100 requests per minute
		PerIPEnabled:    true,
		PerIPCapacity:   100,
		PerIPRefillRate: 100.0 / 60.0,

		// Per-User: 30 switches per minute
		PerUserEnabled:    true,
		PerUserCapacity:   30,
		PerUserRefillRate: 30.0 / 60.0,

		BucketTTL:      1 * time.Hour,
		MaxKeys:        DefaultMaxKeys,
		IncludeHeaders: true,
		EndpointLimits: make(map[string]EndpointLimit),
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config           *Config
	globalLimiter    *RateLimiter
	ipLimiter        *RateLimiter
	userLimiter      *RateLimiter
	endpointLimiters map[string]*RateLimiter
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		endpointLimiters: make(map[string]*RateLimiter),
	}
	if config.GlobalEnabled {
		m.globalLimiter = NewRateLimiterWithSize(config.GlobalCapacity, config.GlobalRefillRate, config.BucketTTL, 1)
	}
	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiterWithSize(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL, config.MaxKeys)
	}
	if config.PerUserEnabled {
		m.userLimiter = NewRateLimiterWithSize(config.PerUserCapacity, config.PerUserRefillRate, config.BucketTTL, config.MaxKeys)
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewRateLimiterWithSize(limit.Capacity, limit.RefillRate, config.BucketTTL, config.MaxKeys)
	}
	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.globalLimiter != nil && !m.globalLimiter.Allow("global") {
			m.rateLimitExceeded(w, r, "global")
			return
		}

		ip := m.clientIP(r)
		if m.ipLimiter != nil && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip")
			return
		}

		userID := getUserID(r)
		if m.userLimiter != nil && userID != "" && !m.userLimiter.Allow(userID) {
			m.rateLimitExceeded(w, r, "user")
			return
		}

		endpointKey := r.Method + " " + r.URL.Path
		if limiter, exists := m.endpointLimiters[endpointKey]; exists {
			if !limiter.Allow(ip + ":" + endpointKey) {
				m.rateLimitExceeded(w, r, "endpoint")
				return
			}
		}

		if m.config.IncludeHeaders {
			m.addRateLimitHeaders(w, ip, userID)
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", m.clientIP(r),
		"user", getUserID(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	e := errors.RateLimitExceeded("60")
	w.Header().Set("Retry-After", "60")
	render.Status(r, e.HTTPStatusCode())
	render.JSON(w, r, map[string]interface{}{
		"code":    e.Code,
		"message": "Too many requests. Please try again later.",
		"type":    limitType,
		"details": e.Details,
	})
}

func (m *Middleware) addRateLimitHeaders(w http.ResponseWriter, ip, userID string) {
	if m.ipLimiter != nil && ip != "" {
		w.Header().Set("X-RateLimit-Limit-IP", strconv.Itoa(m.config.PerIPCapacity))
	}
	if m.userLimiter != nil && userID != "" {
		w.Header().Set("X-RateLimit-Limit-User", strconv.Itoa(m.config.PerUserCapacity))
	}
}

func (m *Middleware) clientIP(r *http.Request) string {
	if m.config.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// getUserID prefers the resolved identity and falls back to the verified
// token's subject.
func getUserID(r *http.Request) string {
	if u, ok := client.GetAuthUser(r.Context()); ok {
		return u.UserId
	}

	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// GetStats returns statistics about all rate limiters
func (m *Middleware) GetStats() map[string]Stats {
	stats := make(map[string]Stats)
	if m.globalLimiter != nil {
		stats["global"] = m.globalLimiter.GetStats()
	}
	if m.ipLimiter != nil {
		stats["ip"] = m.ipLimiter.GetStats()
	}
	if m.userLimiter != nil {
		stats["user"] = m.userLimiter.GetStats()
	}
	for endpoint, limiter := range m.endpointLimiters {
		stats["endpoint:"+endpoint] = limiter.GetStats()
	}
	return stats
}

// Reset resets rate limits for a specific IP or user
func (m *Middleware) Reset(key string) {
	if m.ipLimiter != nil {
		m.ipLimiter.Reset(key)
	}
	if m.userLimiter != nil {
		m.userLimiter.Reset(key)
	}
}
