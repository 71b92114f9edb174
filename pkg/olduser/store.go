package olduser

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tendant/user-switching/pkg/tokengenerator"
)

const (
	DefaultCookieName = "olduser"
	DefaultTTL        = 48 * time.Hour
)

// Record is one originating user. Token is the signed entry it was decoded from.
type Record struct {
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Token     string    `json:"-"`
}

// Options scope the stack cookie. Path and Domain should match the session cookie.
type Options struct {
	CookieName   string
	CookiePath   string
	CookieDomain string
	SiteURL      string
	TTL          time.Duration
}

type Store struct {
	opts   Options
	tokens tokengenerator.TokenGenerator

	// Now is the clock used for entry issuance and cookie expiry. Defaults to time.Now.
	Now func() time.Time
}

func NewStore(tokens tokengenerator.TokenGenerator, opts Options) *Store {
	if opts.CookieName == "" {
		opts.CookieName = DefaultCookieName
	}
	if opts.CookiePath == "" {
		opts.CookiePath = "/"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Store{opts: opts, tokens: tokens, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// IsSiteSecure reports whether the stack cookie may carry the Secure flag for r.
func (s *Store) IsSiteSecure(r *http.Request) bool {
	return tokengenerator.SiteIsSecure(r, s.opts.SiteURL)
}

// Push appends a signed entry for userID to the stack found on r and rewrites
// the cookie with a fresh expiry.
func (s *Store) Push(w http.ResponseWriter, r *http.Request, userID string) error {
	expiresAt := s.now().Add(s.opts.TTL)
	entry, err := s.tokens.GenerateToken(userID, tokengenerator.PurposeOldUser, expiresAt, nil)
	if err != nil {
		slog.Error("Failed to sign old user entry", "err", err, "user", userID)
		return err
	}
	stack := append(s.Read(r), entry)
	return s.write(w, r, stack, expiresAt)
}

// Pop removes the most recent entry. When clearAll is set, or nothing is left,
// the cookie is expired instead of rewritten.
func (s *Store) Pop(w http.ResponseWriter, r *http.Request, clearAll bool) error {
	stack := s.Read(r)
	if len(stack) > 0 {
		stack = stack[:len(stack)-1]
	}
	if clearAll || len(stack) == 0 {
		return s.cookieSetter(r).ClearCookie(w, s.opts.CookieName)
	}
	return s.write(w, r, stack, s.now().Add(s.opts.TTL))
}

// Clear removes the whole stack.
func (s *Store) Clear(w http.ResponseWriter, r *http.Request) error {
	return s.Pop(w, r, true)
}

func (s *Store) cookieSetter(r *http.Request) *tokengenerator.BaseCookieSetter {
	return tokengenerator.NewCookieSetter(s.opts.CookiePath, s.opts.CookieDomain, true, s.IsSiteSecure(r))
}

func (s *Store) write(w http.ResponseWriter, r *http.Request, stack []string, expiresAt time.Time) error {
	data, err := json.Marshal(stack)
	if err != nil {
		return err
	}
	// JSON quotes are not valid in a raw cookie value.
	return s.cookieSetter(r).SetCookie(w, s.opts.CookieName, url.QueryEscape(string(data)), expiresAt)
}

// Read returns the raw stack entries, oldest first. It never fails: a missing
// or malformed cookie is an empty stack.
func (s *Store) Read(r *http.Request) []string {
	cookie, err := r.Cookie(s.opts.CookieName)
	if err != nil || cookie.Value == "" {
		return []string{}
	}
	raw, err := url.QueryUnescape(cookie.Value)
	if err != nil {
		slog.Debug("Ignoring undecodable old user cookie", "err", err)
		return []string{}
	}
	var stack []string
	if err := json.Unmarshal([]byte(raw), &stack); err != nil {
		slog.Debug("Ignoring malformed old user cookie", "err", err)
		return []string{}
	}
	return stack
}

// Records decodes every entry without verifying it. Entries that do not decode
// are skipped. Use LatestValid for anything that grants access.
func (s *Store) Records(r *http.Request) []Record {
	parser := jwt.NewParser()
	var records []Record
	for _, entry := range s.Read(r) {
		claims := &tokengenerator.Claims{}
		if _, _, err := parser.ParseUnverified(entry, claims); err != nil {
			continue
		}
		records = append(records, recordFromClaims(entry, claims))
	}
	return records
}

// LatestValid verifies the most recent entry (signature, expiry and the
// old_user purpose) and returns it. Anything else is reported as absent.
func (s *Store) LatestValid(r *http.Request) (Record, bool) {
	stack := s.Read(r)
	if len(stack) == 0 {
		return Record{}, false
	}
	entry := stack[len(stack)-1]
	claims, err := s.tokens.ParseToken(entry, tokengenerator.PurposeOldUser)
	if err != nil {
		slog.Debug("Latest old user entry is not valid", "err", err)
		return Record{}, false
	}
	return recordFromClaims(entry, claims), true
}

func recordFromClaims(entry string, claims *tokengenerator.Claims) Record {
	rec := Record{UserID: claims.Subject, Token: entry}
	if claims.IssuedAt != nil {
		rec.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		rec.ExpiresAt = claims.ExpiresAt.Time
	}
	return rec
}
