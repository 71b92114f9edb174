package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveQueryArgs(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/admin/users", "/admin/users"},
		{"/admin/users?paged=2", "/admin/users?paged=2"},
		{"/admin/users?user_switched=true&switched_back=true", "/admin/users"},
		{"/admin/edit?post=5&updated=1&message=6", "/admin/edit?post=5"},
		{"https://example.com/admin/?settings-updated=true&trashed=1&untrashed=1&tab=general", "https://example.com/admin/?tab=general"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RemoveQueryArgs(tt.in), tt.in)
	}
}

func TestAddQueryArgs(t *testing.T) {
	assert.Equal(t, "/admin/?user_switched=true", AddQueryArgs("/admin/", map[string]string{"user_switched": "true"}))
	assert.Equal(t, "/admin/users?paged=2&switched_back=true&user_switched=true",
		AddQueryArgs("/admin/users?paged=2", map[string]string{"user_switched": "true", "switched_back": "true"}))
}

func TestIsSafeRedirect(t *testing.T) {
	tests := []struct {
		target string
		want   bool
	}{
		{"/admin/", true},
		{"/admin/users?paged=2", true},
		{"relative/path", true},
		{"https://example.com/admin/", true},
		{"http://EXAMPLE.com/", true},
		{"https://site.example/", true},
		{"https://evil.example/", false},
		{"//evil.example/path", false},
		{"/\\evil.example", false},
		{"javascript:alert(1)", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isSafeRedirect(tt.target, "example.com", "site.example"), tt.target)
	}
}
