package api

import (
	"net/url"
	"strings"
)

// Flash markers from earlier screens that must not reappear after a switch.
var staleQueryArgs = []string{
	"user_switched", "switched_off", "switched_back",
	"message", "update", "updated", "settings-updated", "saved",
	"activated", "activate", "deactivate", "enabled", "disabled",
	"locked", "skipped", "deleted", "trashed", "untrashed",
}

// RemoveQueryArgs strips the one-shot status markers from rawURL.
func RemoveQueryArgs(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	changed := false
	for _, arg := range staleQueryArgs {
		if q.Has(arg) {
			q.Del(arg)
			changed = true
		}
	}
	if !changed {
		return rawURL
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// AddQueryArgs sets args on rawURL, keeping its other parameters.
func AddQueryArgs(rawURL string, args map[string]string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	for k, v := range args {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// isSafeRedirect accepts relative paths and absolute URLs on one of hosts.
func isSafeRedirect(rawURL string, hosts ...string) bool {
	if rawURL == "" || strings.ContainsAny(rawURL, "\\\r\n") {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		// "//evil.example" parses with a host, so only true paths reach here.
		return !strings.HasPrefix(rawURL, "//")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	for _, host := range hosts {
		if host != "" && strings.EqualFold(u.Host, host) {
			return true
		}
	}
	return false
}
