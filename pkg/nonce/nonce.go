// Package nonce issues action tokens: short-lived anti-forgery values bound to
// one action string (for example "switch_to_user_42"), the acting user and
// their session credential.
//
// A token is an HMAC over the current time tick. A tick is half the token
// lifetime, and both the current and the previous tick are accepted, so a token
// lives between half and the full lifetime. Each token verifies once.
package nonce

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// Param is the request parameter carrying an action token.
	Param = "_token"

	DefaultLifetime        = 24 * time.Hour
	DefaultReplayCacheSize = 10000

	tokenLength = 20
)

type Service struct {
	secret   []byte
	lifetime time.Duration

	mu   sync.Mutex
	used *expirable.LRU[string, struct{}]

	// Now is the clock used for ticks. Defaults to time.Now.
	Now func() time.Time
}

func NewService(secret string, lifetime time.Duration, replayCacheSize int) *Service {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	if replayCacheSize <= 0 {
		replayCacheSize = DefaultReplayCacheSize
	}
	return &Service{
		secret:   []byte(secret),
		lifetime: lifetime,
		used:     expirable.NewLRU[string, struct{}](replayCacheSize, nil, lifetime),
		Now:      time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func (s *Service) tick() int64 {
	half := int64(s.lifetime / 2)
	return (s.now().UnixNano() + half - 1) / half
}

func (s *Service) hash(tick int64, action, userID, sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(strconv.FormatInt(tick, 10) + "|" + action + "|" + userID + "|" + sessionID))
	return hex.EncodeToString(mac.Sum(nil))[:tokenLength]
}

// Create returns the token for action on behalf of userID in session sessionID.
// Anonymous callers pass empty userID and sessionID.
func (s *Service) Create(action, userID, sessionID string) string {
	return s.hash(s.tick(), action, userID, sessionID)
}

// Verify checks token and consumes it. It returns 1 when the token was made in
// the current tick, 2 when made in the previous one, and 0 when invalid or
// already used.
func (s *Service) Verify(action, userID, sessionID, token string) int {
	if len(token) != tokenLength {
		return 0
	}

	tick := s.tick()
	for age := 0; age < 2; age++ {
		expected := s.hash(tick-int64(age), action, userID, sessionID)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(token)) != 1 {
			continue
		}
		key := action + "|" + userID + "|" + token
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.used.Contains(key) {
			slog.Warn("Rejected reused action token", "action", action, "user", userID)
			return 0
		}
		s.used.Add(key, struct{}{})
		return age + 1
	}
	return 0
}
