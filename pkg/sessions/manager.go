package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/tokengenerator"
	"github.com/tendant/user-switching/pkg/user"
)

var ErrSessionRevoked = errors.New("session revoked")

// Options configures the login session credential.
type Options struct {
	CookieName   string
	CookiePath   string
	CookieDomain string
	// SiteURL is the canonical site URL; Secure cookies are only issued when it is https.
	SiteURL     string
	TTL         time.Duration
	RememberTTL time.Duration
	Issuer      string
}

func DefaultOptions() Options {
	return Options{
		CookieName:  "session",
		CookiePath:  "/",
		SiteURL:     "http://localhost:4000",
		TTL:         48 * time.Hour,
		RememberTTL: 14 * 24 * time.Hour,
		Issuer:      "user-switching",
	}
}

// Manager issues, verifies and clears the host login credential: an HS256 JWT
// with purpose "login" held in a cookie.
type Manager struct {
	opts      Options
	tokens    *tokengenerator.JwtTokenGenerator
	tokenAuth *jwtauth.JWTAuth
	repo      Repository
}

// NewManager builds a Manager. repo may be nil, in which case cleared credentials
// are only removed from the client and not revoked server side.
func NewManager(secret string, opts Options, repo Repository) *Manager {
	defaults := DefaultOptions()
	if opts.CookieName == "" {
		opts.CookieName = defaults.CookieName
	}
	if opts.CookiePath == "" {
		opts.CookiePath = defaults.CookiePath
	}
	if opts.TTL <= 0 {
		opts.TTL = defaults.TTL
	}
	if opts.RememberTTL <= 0 {
		opts.RememberTTL = defaults.RememberTTL
	}
	if opts.Issuer == "" {
		opts.Issuer = defaults.Issuer
	}
	return &Manager{
		opts:      opts,
		tokens:    tokengenerator.NewJwtTokenGenerator(secret, opts.Issuer),
		tokenAuth: jwtauth.New("HS256", []byte(secret), nil),
		repo:      repo,
	}
}

func (m *Manager) Options() Options {
	return m.opts
}

// Tokens exposes the signer so other purposes (old_user records) share the secret.
func (m *Manager) Tokens() *tokengenerator.JwtTokenGenerator {
	return m.tokens
}

func (m *Manager) cookieSetter(r *http.Request) *tokengenerator.BaseCookieSetter {
	return tokengenerator.NewCookieSetter(m.opts.CookiePath, m.opts.CookieDomain, true,
		tokengenerator.SiteIsSecure(r, m.opts.SiteURL))
}

// Credential is a signed and recorded login credential that has not been
// sent to the client yet.
type Credential struct {
	Token string
	// CookieExpiry is zero for a browser-session cookie.
	CookieExpiry time.Time
	User         *client.AuthUser
}

// Prepare signs a login credential for u and records it. Nothing is written to
// the client. A remembered session lasts RememberTTL and gets a persistent
// cookie; otherwise the credential lasts TTL and the cookie ends with the
// browser session.
func (m *Manager) Prepare(ctx context.Context, u user.User, remember bool) (*Credential, error) {
	now := m.tokens.Now()
	ttl := m.opts.TTL
	if remember {
		ttl = m.opts.RememberTTL
	}
	expiresAt := now.Add(ttl)

	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	tokenStr, err := m.tokens.GenerateToken(u.ID, tokengenerator.PurposeLogin, expiresAt, map[string]interface{}{
		"login":        u.Login,
		"display_name": u.DisplayName,
		"roles":        roles,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}
	claims, err := m.tokens.ParseToken(tokenStr, tokengenerator.PurposeLogin)
	if err != nil {
		return nil, fmt.Errorf("failed to read back session token: %w", err)
	}

	if m.repo != nil {
		err := m.repo.Create(ctx, Session{
			JTI:       claims.ID,
			UserID:    u.ID,
			Remember:  remember,
			IssuedAt:  claims.IssuedAt.Time,
			ExpiresAt: claims.ExpiresAt.Time,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to record session: %w", err)
		}
	}

	cred := &Credential{
		Token: tokenStr,
		User: &client.AuthUser{
			UserId:        u.ID,
			DisplayName:   u.DisplayName,
			Login:         u.Login,
			Roles:         roles,
			SessionID:     claims.ID,
			SessionExpiry: claims.ExpiresAt.Time,
		},
	}
	if remember {
		cred.CookieExpiry = expiresAt
	}
	return cred, nil
}

// Commit sets the session cookie for cred.
func (m *Manager) Commit(w http.ResponseWriter, r *http.Request, cred *Credential) error {
	if err := m.cookieSetter(r).SetCookie(w, m.opts.CookieName, cred.Token, cred.CookieExpiry); err != nil {
		return err
	}
	slog.Debug("Issued session credential", "user", cred.User.UserId, "remember", !cred.CookieExpiry.IsZero())
	return nil
}

// Issue prepares a credential for u and sets the session cookie.
func (m *Manager) Issue(ctx context.Context, w http.ResponseWriter, r *http.Request, u user.User, remember bool) (*client.AuthUser, error) {
	cred, err := m.Prepare(ctx, u, remember)
	if err != nil {
		return nil, err
	}
	if err := m.Commit(w, r, cred); err != nil {
		return nil, err
	}
	return cred.User, nil
}

// Revoke marks the credential the request arrived with as revoked, so it
// cannot be replayed. The cookie is left alone.
func (m *Manager) Revoke(ctx context.Context, r *http.Request) error {
	if m.repo == nil {
		return nil
	}
	jti := m.currentJTI(ctx, r)
	if jti == "" {
		return nil
	}
	if err := m.repo.RevokeByJTI(ctx, jti); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// Clear revokes the credential the request arrived with and expires the
// session cookie.
func (m *Manager) Clear(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if err := m.Revoke(ctx, r); err != nil {
		return err
	}
	return m.cookieSetter(r).ClearCookie(w, m.opts.CookieName)
}

func (m *Manager) currentJTI(ctx context.Context, r *http.Request) string {
	if u, ok := client.GetAuthUser(ctx); ok && u.SessionID != "" {
		return u.SessionID
	}
	tokenStr := m.TokenFromCookie(r)
	if tokenStr == "" {
		return ""
	}
	claims, err := m.tokens.ParseToken(tokenStr, tokengenerator.PurposeLogin)
	if err != nil {
		return ""
	}
	return claims.ID
}

// Remember reports whether u's credential was issued as a remembered session:
// its remaining lifetime exceeds the default session lifetime.
func (m *Manager) Remember(u *client.AuthUser) bool {
	if u == nil || u.SessionExpiry.IsZero() {
		return false
	}
	return u.SessionExpiry.Sub(m.tokens.Now()) > m.opts.TTL
}

// TokenFromCookie extracts the credential from the session cookie.
func (m *Manager) TokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(m.opts.CookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// Middleware verifies the session cookie and fills the request identity slot.
// Requests without a valid, unrevoked credential continue unauthenticated.
func (m *Manager) Middleware() func(http.Handler) http.Handler {
	verify := jwtauth.Verify(m.tokenAuth, m.TokenFromCookie)
	return func(next http.Handler) http.Handler {
		return verify(m.rejectRevoked(client.AuthUserMiddleware(next)))
	}
}

func (m *Manager) rejectRevoked(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.repo == nil {
			next.ServeHTTP(w, r)
			return
		}
		token, _, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil || token.JwtID() == "" {
			next.ServeHTTP(w, r)
			return
		}
		revoked, err := m.repo.IsRevoked(r.Context(), token.JwtID())
		if err != nil {
			slog.Error("Failed checking session revocation", "err", err)
			revoked = true
		}
		if revoked {
			slog.Info("Rejected revoked session credential", "jti", token.JwtID())
			ctx := jwtauth.NewContext(r.Context(), nil, ErrSessionRevoked)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}
