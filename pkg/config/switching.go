package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Development-only secrets. Validate rejects them in production.
const (
	DefaultJwtSecret   = "very-secure-jwt-secret"
	DefaultNonceSecret = "very-secure-nonce-secret"
)

type SiteConfig struct {
	// URL is the canonical site address. Its scheme decides whether cookies
	// are marked Secure.
	URL      string `env:"SITE_URL" env-default:"http://localhost:4000"`
	HomeURL  string `env:"SWITCH_HOME_URL" env-default:"/"`
	AdminURL string `env:"SWITCH_ADMIN_URL" env-default:"/admin/"`
	UsersURL string `env:"SWITCH_USERS_URL" env-default:"/admin/users"`
}

// StackConfig configures the old-user stack cookie. Field names match
// olduser.Options so it can be copied across.
type StackConfig struct {
	Prefix       string        `env:"SWITCH_HTTP_PREFIX" env-default:"/switch"`
	CookieName   string        `env:"SWITCH_COOKIE_NAME" env-default:"olduser"`
	CookiePath   string        `env:"SWITCH_COOKIE_PATH" env-default:"/"`
	CookieDomain string        `env:"SWITCH_COOKIE_DOMAIN"`
	TTL          time.Duration `env:"SWITCH_STACK_TTL" env-default:"48h"`
}

// SessionConfig configures the login credential. Field names match
// sessions.Options.
type SessionConfig struct {
	JwtSecret    string        `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
	Issuer       string        `env:"JWT_ISSUER" env-default:"user-switching"`
	CookieName   string        `env:"SESSION_COOKIE_NAME" env-default:"session"`
	CookiePath   string        `env:"SESSION_COOKIE_PATH" env-default:"/"`
	CookieDomain string        `env:"SESSION_COOKIE_DOMAIN"`
	TTL          time.Duration `env:"SESSION_TTL" env-default:"48h"`
	RememberTTL  time.Duration `env:"SESSION_REMEMBER_TTL" env-default:"336h"`
	// Store is "memory" or "postgres" and holds the revocation list.
	Store         string        `env:"SESSION_STORE" env-default:"memory"`
	PurgeInterval time.Duration `env:"SESSION_PURGE_INTERVAL" env-default:"1h"`
}

type NonceConfig struct {
	Secret          string        `env:"NONCE_SECRET" env-default:"very-secure-nonce-secret"`
	TTL             time.Duration `env:"NONCE_TTL" env-default:"24h"`
	ReplayCacheSize int           `env:"NONCE_REPLAY_CACHE_SIZE" env-default:"10000"`
}

type CapabilityConfig struct {
	UnrestrictedRole string `env:"UNRESTRICTED_ROLE" env-default:"superadmin"`
	// PolicyFile is a casbin policy CSV. Empty loads the built-in roles.
	PolicyFile string `env:"CASBIN_POLICY_FILE"`
}

type UserStoreConfig struct {
	// Store is "memory", "file" or "postgres".
	Store   string `env:"USER_STORE" env-default:"memory"`
	DataDir string `env:"USER_DATA_DIR" env-default:"./data"`
	// SeedPassword is given to the demo accounts of an empty store.
	SeedPassword string `env:"USER_SEED_PASSWORD" env-default:"password"`
}

type Config struct {
	AppEnv     string `env:"APP_ENV" env-default:"development"`
	LogLevel   string `env:"LOG_LEVEL" env-default:"info"`
	Site       SiteConfig
	Stack      StackConfig
	Session    SessionConfig
	Nonce      NonceConfig
	Capability CapabilityConfig
	Users      UserStoreConfig
	Database   DatabaseConfig
	Email      EmailConfig
	RateLimit  RateLimitConfig
}

// Load reads Config from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Environment() Environment {
	return ParseEnvironment(c.AppEnv)
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) Validate() error {
	env := c.Environment()
	return Validate(
		func() ValidationErrors {
			return CollectErrors(
				RequireSiteURL("SITE_URL", c.Site.URL),
				RequireLocalPath("SWITCH_HOME_URL", c.Site.HomeURL),
				RequireLocalPath("SWITCH_ADMIN_URL", c.Site.AdminURL),
				RequireLocalPath("SWITCH_USERS_URL", c.Site.UsersURL),
				RequireLocalPath("SWITCH_HTTP_PREFIX", c.Stack.Prefix),
				RequireNonEmpty("SWITCH_COOKIE_NAME", c.Stack.CookieName),
				RequireLocalPath("SWITCH_COOKIE_PATH", c.Stack.CookiePath),
				RequirePositiveDuration("SWITCH_STACK_TTL", c.Stack.TTL),
			)
		},
		func() ValidationErrors {
			return CollectErrors(
				RequireSecret("JWT_SECRET", c.Session.JwtSecret, DefaultJwtSecret, env),
				RequireNonEmpty("SESSION_COOKIE_NAME", c.Session.CookieName),
				RequireLocalPath("SESSION_COOKIE_PATH", c.Session.CookiePath),
				RequirePositiveDuration("SESSION_TTL", c.Session.TTL),
				RequirePositiveDuration("SESSION_REMEMBER_TTL", c.Session.RememberTTL),
				RequireNotShorter("SESSION_REMEMBER_TTL", c.Session.RememberTTL, "SESSION_TTL", c.Session.TTL),
				RequireOneOf("SESSION_STORE", c.Session.Store, "memory", "postgres"),
				RequireSecret("NONCE_SECRET", c.Nonce.Secret, DefaultNonceSecret, env),
				RequirePositiveDuration("NONCE_TTL", c.Nonce.TTL),
				RequirePositive("NONCE_REPLAY_CACHE_SIZE", c.Nonce.ReplayCacheSize),
				RequireOneOf("USER_STORE", c.Users.Store, "memory", "file", "postgres"),
			)
		},
		func() ValidationErrors {
			if !c.Email.Enabled {
				return nil
			}
			return CollectErrors(
				RequireNonEmpty("EMAIL_HOST", c.Email.Host),
				RequireValidPort("EMAIL_PORT", c.Email.Port),
				RequireValidEmail("EMAIL_FROM", c.Email.From),
			)
		},
	)
}
