// Package olduser persists the identity stack: the ordered list of users who
// were active before a switch, held by the client in a single cookie.
//
// The cookie value is a JSON array of signed tokens, most recent last:
//
//	["<jwt for user 1>", "<jwt for user 7>"]
//
// Each entry is a JWT with purpose "old_user", signed with the same secret as
// the login credential. The purpose tag keeps the two apart: an old_user entry
// is never accepted as a login credential and a login credential is never
// accepted as an old_user entry.
//
// The stack is advisory. Read never fails; an absent or malformed cookie is an
// empty stack. Only LatestValid verifies anything, and it treats an invalid or
// expired entry as absent.
//
//	store := olduser.NewStore(tokens, olduser.Options{SiteURL: "https://example.com"})
//	_ = store.Push(w, r, "1")             // remember user 1
//	rec, ok := store.LatestValid(r)       // who to switch back to
//	_ = store.Pop(w, r, false)            // drop one frame
package olduser
