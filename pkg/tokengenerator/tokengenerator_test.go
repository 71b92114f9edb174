package tokengenerator

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestGenerateAndParseToken(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewJwtTokenGenerator("test-secret", "switch-test")
	g.Now = fixedClock(now)

	tokenStr, err := g.GenerateToken("42", PurposeOldUser, now.Add(48*time.Hour), nil)
	require.NoError(t, err)
	require.NotEmpty(t, tokenStr)

	claims, err := g.ParseToken(tokenStr, PurposeOldUser)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Subject)
	assert.Equal(t, PurposeOldUser, claims.Purpose)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(48*time.Hour).Unix(), claims.ExpiresAt.Unix())
	assert.NotEmpty(t, claims.ID)
}

func TestParseTokenRejectsOtherPurpose(t *testing.T) {
	g := NewJwtTokenGenerator("test-secret", "switch-test")

	loginToken, err := g.GenerateToken("1", PurposeLogin, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	_, err = g.ParseToken(loginToken, PurposeOldUser)
	assert.ErrorIs(t, err, ErrPurposeMismatch)

	oldUserToken, err := g.GenerateToken("1", PurposeOldUser, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	_, err = g.ParseToken(oldUserToken, PurposeLogin)
	assert.ErrorIs(t, err, ErrPurposeMismatch)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	g := NewJwtTokenGenerator("test-secret", "switch-test")
	g.Now = fixedClock(issued)

	tokenStr, err := g.GenerateToken("7", PurposeOldUser, issued.Add(48*time.Hour), nil)
	require.NoError(t, err)

	g.Now = fixedClock(issued.Add(49 * time.Hour))
	_, err = g.ParseToken(tokenStr, PurposeOldUser)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	g := NewJwtTokenGenerator("secret-a", "switch-test")
	other := NewJwtTokenGenerator("secret-b", "switch-test")

	tokenStr, err := g.GenerateToken("7", PurposeOldUser, time.Now().Add(time.Hour), nil)
	require.NoError(t, err)

	_, err = other.ParseToken(tokenStr, PurposeOldUser)
	assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestGenerateTokenRequiresSubject(t *testing.T) {
	g := NewJwtTokenGenerator("secret", "switch-test")
	_, err := g.GenerateToken("", PurposeLogin, time.Now().Add(time.Hour), nil)
	assert.ErrorIs(t, err, ErrEmptySubject)
}

func TestParseTokenGarbage(t *testing.T) {
	g := NewJwtTokenGenerator("secret", "switch-test")
	_, err := g.ParseToken("not-a-jwt", PurposeLogin)
	assert.Error(t, err)
}

func TestSiteIsSecure(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	tlsReq := httptest.NewRequest(http.MethodGet, "https://example.com/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "https")

	assert.False(t, SiteIsSecure(plain, "https://example.com"), "plain request is never secure")
	assert.True(t, SiteIsSecure(tlsReq, "https://example.com"))
	assert.True(t, SiteIsSecure(proxied, "https://example.com"))
	assert.False(t, SiteIsSecure(tlsReq, "http://example.com"), "non-https canonical url must not get a Secure cookie")
	assert.False(t, SiteIsSecure(tlsReq, "://bad"))
}

func TestCookieSetter(t *testing.T) {
	setter := NewCookieSetter("", "example.com", true, false)
	rec := httptest.NewRecorder()

	expire := time.Now().Add(time.Hour)
	require.NoError(t, setter.SetCookie(rec, "olduser", "value", expire))
	require.NoError(t, setter.ClearCookie(rec, "session"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 2)

	assert.Equal(t, "olduser", cookies[0].Name)
	assert.Equal(t, "/", cookies[0].Path)
	assert.Equal(t, "example.com", cookies[0].Domain)
	assert.True(t, cookies[0].HttpOnly)
	assert.False(t, cookies[0].Secure)

	assert.Equal(t, "session", cookies[1].Name)
	assert.Equal(t, -1, cookies[1].MaxAge)
}
