package tokengenerator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token purposes. A token is only accepted by the verifier asking for the same
// purpose, so an old_user record can never be replayed as a login credential.
const (
	PurposeLogin   = "login"
	PurposeOldUser = "old_user"
)

var (
	ErrPurposeMismatch = errors.New("token purpose mismatch")
	ErrEmptySubject    = errors.New("token subject is empty")
)

// TokenGenerator interface defines methods for token operations
type TokenGenerator interface {
	// GenerateToken signs a token for subject with the given purpose, valid until expiresAt
	GenerateToken(subject, purpose string, expiresAt time.Time, extraClaims map[string]interface{}) (string, error)

	// ParseToken verifies signature, expiry and purpose, and returns the claims
	ParseToken(tokenStr, purpose string) (*Claims, error)
}

// Claims struct for JWT claims
type Claims struct {
	Purpose     string                 `json:"purpose"`
	ExtraClaims map[string]interface{} `json:"extra_claims,omitempty"`
	jwt.RegisteredClaims
}

// JwtTokenGenerator implements the TokenGenerator interface with HS256
type JwtTokenGenerator struct {
	Secret string
	Issuer string

	// Now is the clock used for iat and for expiry validation. Defaults to time.Now.
	Now func() time.Time
}

// NewJwtTokenGenerator creates a new JwtTokenGenerator
func NewJwtTokenGenerator(secret, issuer string) *JwtTokenGenerator {
	return &JwtTokenGenerator{
		Secret: secret,
		Issuer: issuer,
		Now:    time.Now,
	}
}

func (g *JwtTokenGenerator) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

// GenerateToken creates a new token with the given subject and purpose
func (g *JwtTokenGenerator) GenerateToken(subject, purpose string, expiresAt time.Time, extraClaims map[string]interface{}) (string, error) {
	if subject == "" {
		return "", ErrEmptySubject
	}

	claims := Claims{
		Purpose:     purpose,
		ExtraClaims: extraClaims,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt.UTC()),
			IssuedAt:  jwt.NewNumericDate(g.now().UTC()),
			Issuer:    g.Issuer,
			Subject:   subject,
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(g.Secret))
	if err != nil {
		slog.Error("Failed sign JWT Claim string!", "err", err, "purpose", purpose)
		return "", err
	}
	return ss, nil
}

// ParseToken parses and validates a token string for the given purpose
func (g *JwtTokenGenerator) ParseToken(tokenStr, purpose string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(g.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(g.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		slog.Debug("Failed parse JWT string", "err", err, "purpose", purpose)
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("failed_parse_token_claims")
	}
	if claims.Purpose != purpose {
		slog.Warn("Rejected token with unexpected purpose", "want", purpose, "got", claims.Purpose)
		return nil, ErrPurposeMismatch
	}
	if claims.Subject == "" {
		return nil, ErrEmptySubject
	}
	return claims, nil
}
