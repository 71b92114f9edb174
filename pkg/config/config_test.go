package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", cfg.Site.URL)
	assert.Equal(t, "/switch", cfg.Stack.Prefix)
	assert.Equal(t, "olduser", cfg.Stack.CookieName)
	assert.Equal(t, 48*time.Hour, cfg.Stack.TTL)
	assert.Equal(t, "session", cfg.Session.CookieName)
	assert.Equal(t, 336*time.Hour, cfg.Session.RememberTTL)
	assert.Equal(t, 24*time.Hour, cfg.Nonce.TTL)
	assert.Equal(t, 10000, cfg.Nonce.ReplayCacheSize)
	assert.Equal(t, "superadmin", cfg.Capability.UnrestrictedRole)
	assert.Equal(t, "memory", cfg.Users.Store)
	assert.Equal(t, uint16(5432), cfg.Database.Port)
	assert.Equal(t, 1.67, cfg.RateLimit.PerIPRefillRate)
	assert.False(t, cfg.Email.Enabled)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SITE_URL", "https://example.com")
	t.Setenv("SWITCH_COOKIE_NAME", "stack")
	t.Setenv("SWITCH_STACK_TTL", "2h")
	t.Setenv("USER_STORE", "file")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", cfg.Site.URL)
	assert.Equal(t, "stack", cfg.Stack.CookieName)
	assert.Equal(t, 2*time.Hour, cfg.Stack.TTL)
	assert.Equal(t, "file", cfg.Users.Store)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("USER_STORE", "ldap")
	t.Setenv("SESSION_TTL", "400h")
	t.Setenv("SITE_URL", "localhost")
	t.Setenv("SWITCH_ADMIN_URL", "https://evil.example/")

	_, err := Load()
	require.Error(t, err)

	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	assert.True(t, fields["USER_STORE"])
	assert.True(t, fields["SESSION_REMEMBER_TTL"])
	assert.True(t, fields["SITE_URL"])
	assert.True(t, fields["SWITCH_ADMIN_URL"])
}

func TestProductionRequiresSecrets(t *testing.T) {
	t.Setenv("APP_ENV", "prod")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "NONCE_SECRET")

	t.Setenv("JWT_SECRET", "a-long-production-jwt-secret")
	t.Setenv("NONCE_SECRET", "a-long-production-nonce-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Production, cfg.Environment())
}

func TestEmailValidatedOnlyWhenEnabled(t *testing.T) {
	t.Setenv("EMAIL_FROM", "not-an-email")
	_, err := Load()
	require.NoError(t, err)

	t.Setenv("EMAIL_ENABLED", "true")
	_, err = Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EMAIL_FROM")
}

func TestRateLimitToMiddlewareConfig(t *testing.T) {
	rl := RateLimitConfig{
		PerIPEnabled:    true,
		PerIPCapacity:   5,
		PerIPRefillRate: 1,
		LoginCapacity:   3,
		LoginRefillRate: 0.1,
		BucketTTL:       time.Minute,
	}
	cfg := rl.ToMiddlewareConfig("/login")

	assert.False(t, cfg.GlobalEnabled)
	assert.True(t, cfg.PerIPEnabled)
	assert.Equal(t, 5, cfg.PerIPCapacity)
	assert.False(t, cfg.PerUserEnabled)
	assert.Equal(t, time.Minute, cfg.BucketTTL)
	require.Contains(t, cfg.EndpointLimits, "POST /login")
	assert.Equal(t, 3, cfg.EndpointLimits["POST /login"].Capacity)
}

func TestParseEnvironment(t *testing.T) {
	assert.Equal(t, Production, ParseEnvironment("PRODUCTION"))
	assert.Equal(t, Staging, ParseEnvironment("stage"))
	assert.Equal(t, Test, ParseEnvironment("testing"))
	assert.Equal(t, Development, ParseEnvironment("anything"))
}
