package tokengenerator

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// CookieSetter interface defines methods for cookie operations
type CookieSetter interface {
	// SetCookie sets a cookie with the given value and expiry
	SetCookie(w http.ResponseWriter, name, value string, expire time.Time) error

	// ClearCookie expires a cookie in the past
	ClearCookie(w http.ResponseWriter, name string) error
}

// BaseCookieSetter provides a base implementation of CookieSetter
type BaseCookieSetter struct {
	Path     string
	Domain   string
	HttpOnly bool
	Secure   bool
	SameSite http.SameSite
}

// SetCookie sets a cookie with the given value and expiry
func (c *BaseCookieSetter) SetCookie(w http.ResponseWriter, name, value string, expire time.Time) error {
	cookie := &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Domain:   c.Domain,
		Value:    value,
		Expires:  expire,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}

	http.SetCookie(w, cookie)
	return nil
}

// ClearCookie clears a cookie
func (c *BaseCookieSetter) ClearCookie(w http.ResponseWriter, name string) error {
	cookie := &http.Cookie{
		Name:     name,
		Path:     c.Path,
		Domain:   c.Domain,
		Value:    "",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: c.HttpOnly,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}

	http.SetCookie(w, cookie)
	return nil
}

// NewCookieSetter creates a new cookie setter scoped to path and domain
func NewCookieSetter(path, domain string, httpOnly, secure bool) *BaseCookieSetter {
	if path == "" {
		path = "/"
	}
	return &BaseCookieSetter{
		Path:     path,
		Domain:   domain,
		HttpOnly: httpOnly,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// RequestIsSecure reports whether the request reached us over TLS, directly or
// through a proxy that says so.
func RequestIsSecure(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
}

// SiteIsSecure reports whether a Secure cookie set on this request will come
// back: the request must be secure and the canonical site URL must be https.
// A site whose canonical URL is http would never send a Secure cookie back on
// its canonical host.
func SiteIsSecure(r *http.Request, siteURL string) bool {
	if !RequestIsSecure(r) {
		return false
	}
	u, err := url.Parse(siteURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, "https")
}
