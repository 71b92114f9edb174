package api

import (
	"net/http"
	"net/url"

	"github.com/tendant/user-switching/pkg/capability"
	"github.com/tendant/user-switching/pkg/nonce"
	"github.com/tendant/user-switching/pkg/switching"
)

// Links builds token-bearing URLs for the switch endpoint on behalf of the
// request's active user. Tokens are bound to that user and session, so a
// link only works for whoever it was rendered for. An anonymous client's
// tokens are bound to its latest stack entry instead.
type Links struct {
	prefix string
	engine *switching.Engine
	caps   Authorizer
	nonces NonceService
}

func NewLinks(prefix string, engine *switching.Engine, caps Authorizer, nonces NonceService) *Links {
	return &Links{prefix: prefix, engine: engine, caps: caps, nonces: nonces}
}

// binding returns the user and session an action token is tied to.
func (l *Links) binding(r *http.Request) (string, string) {
	_, userID, sessionID := actor(r.Context())
	if userID == "" {
		if rec, ok := l.engine.CurrentSwitchState(r); ok {
			sessionID = rec.Token
		}
	}
	return userID, sessionID
}

func (l *Links) build(r *http.Request, params url.Values, scope string) string {
	userID, sessionID := l.binding(r)
	params.Set(nonce.Param, l.nonces.Create(scope, userID, sessionID))
	return l.prefix + "?" + params.Encode()
}

func (l *Links) SwitchToURL(r *http.Request, targetID string) string {
	return l.build(r, url.Values{"action": {ActionSwitchToUser}, "user_id": {targetID}}, ActionSwitchToUser+"_"+targetID)
}

func (l *Links) SwitchBackURL(r *http.Request, oldUserID string) string {
	return l.build(r, url.Values{"action": {ActionSwitchToOldUser}}, ActionSwitchToOldUser+"_"+oldUserID)
}

func (l *Links) SwitchOffURL(r *http.Request, userID string) string {
	return l.build(r, url.Values{"action": {ActionSwitchOff}}, ActionSwitchOff+"_"+userID)
}

// MaybeSwitchURL is the link to show next to targetID: switch back when it is
// the user we switched from, switch to when allowed, otherwise "".
func (l *Links) MaybeSwitchURL(r *http.Request, targetID string) string {
	ctx := r.Context()
	if rec, ok := l.engine.CurrentSwitchState(r); ok && rec.UserID == targetID {
		return l.SwitchBackURL(r, rec.UserID)
	}
	_, userID, _ := actor(ctx)
	if userID != "" && l.caps.UserCan(ctx, userID, capability.SwitchToUser, targetID) {
		return l.SwitchToURL(r, targetID)
	}
	return ""
}

// WithRedirect adds a redirect_to parameter to link.
func WithRedirect(link, redirectTo string) string {
	return AddQueryArgs(link, map[string]string{"redirect_to": redirectTo})
}
