package config

import (
	"time"

	"github.com/tendant/user-switching/pkg/ratelimit"
)

// RateLimitConfig contains rate limiting settings for the switch endpoint.
type RateLimitConfig struct {
	Enabled bool `env:"RATELIMIT_ENABLED" env-default:"true"`

	PerIPEnabled    bool    `env:"RATELIMIT_PER_IP_ENABLED" env-default:"true"`
	PerIPCapacity   int     `env:"RATELIMIT_PER_IP_CAPACITY" env-default:"100"`
	PerIPRefillRate float64 `env:"RATELIMIT_PER_IP_REFILL_RATE" env-default:"1.67"` // tokens per second

	PerUserEnabled    bool    `env:"RATELIMIT_PER_USER_ENABLED" env-default:"true"`
	PerUserCapacity   int     `env:"RATELIMIT_PER_USER_CAPACITY" env-default:"30"`
	PerUserRefillRate float64 `env:"RATELIMIT_PER_USER_REFILL_RATE" env-default:"0.5"`

	// Login endpoint limit, counted per IP
	LoginCapacity   int     `env:"RATELIMIT_LOGIN_CAPACITY" env-default:"10"`
	LoginRefillRate float64 `env:"RATELIMIT_LOGIN_REFILL_RATE" env-default:"0.167"`

	BucketTTL         time.Duration `env:"RATELIMIT_BUCKET_TTL" env-default:"1h"`
	TrustProxyHeaders bool          `env:"RATELIMIT_TRUST_PROXY" env-default:"false"`
	IncludeHeaders    bool          `env:"RATELIMIT_INCLUDE_HEADERS" env-default:"true"`
}

// ToMiddlewareConfig builds the middleware config. loginPaths get the login
// endpoint limit for POST requests.
func (c RateLimitConfig) ToMiddlewareConfig(loginPaths ...string) *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.GlobalEnabled = false
	cfg.PerIPEnabled = c.PerIPEnabled
	cfg.PerIPCapacity = c.PerIPCapacity
	cfg.PerIPRefillRate = c.PerIPRefillRate
	cfg.PerUserEnabled = c.PerUserEnabled
	cfg.PerUserCapacity = c.PerUserCapacity
	cfg.PerUserRefillRate = c.PerUserRefillRate
	cfg.BucketTTL = c.BucketTTL
	cfg.TrustProxyHeaders = c.TrustProxyHeaders
	cfg.IncludeHeaders = c.IncludeHeaders
	for _, p := range loginPaths {
		cfg.EndpointLimits["POST "+p] = ratelimit.EndpointLimit{
			Capacity:   c.LoginCapacity,
			RefillRate: c.LoginRefillRate,
		}
	}
	return cfg
}
