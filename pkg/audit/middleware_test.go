package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/user-switching/pkg/client"
	"github.com/tendant/user-switching/pkg/switching"
)

func newTestMiddleware(buf *bytes.Buffer) *Middleware {
	return NewMiddleware(Config{Logger: slog.New(slog.NewJSONHandler(buf, nil))})
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func TestAuditAuthMiddleware(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := m.AuditAuthMiddleware(next)

	req := httptest.NewRequest(http.MethodGet, "/switch?action=switch_to_user&user_id=2", nil)
	req = req.WithContext(client.WithIdentity(req.Context(), &client.AuthUser{UserId: "1"}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/switch", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	got := records(t, &buf)
	require.Len(t, got, 2)
	assert.Equal(t, "audit.request", got[0]["type"])
	assert.Equal(t, "1", got[0]["user"])
	assert.Equal(t, "user-switching", got[0]["source"])
	assert.Equal(t, map[string]any{"action": "switch_to_user"}, got[0]["metadata"])
	assert.Equal(t, "", got[1]["user"])
	assert.Equal(t, "No jwt token", got[1]["message"])
}

func TestSwitchEvents(t *testing.T) {
	var buf bytes.Buffer
	m := newTestMiddleware(&buf)
	ctx := context.Background()
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	m.SwitchedTo(ctx, switching.Event{UserID: "2", OldUserID: "1", At: at})
	m.SwitchedBack(ctx, switching.Event{UserID: "1", OldUserID: "2", At: at})
	m.SwitchedOff(ctx, switching.Event{OldUserID: "1", At: at})

	got := records(t, &buf)
	require.Len(t, got, 3)
	assert.Equal(t, "audit.switch_to", got[0]["type"])
	assert.Equal(t, "2", got[0]["user"])
	assert.Equal(t, "1", got[0]["old_user"])
	assert.Equal(t, "2024-05-06T07:08:09Z", got[0]["timestamp"])
	assert.Equal(t, "audit.switch_back", got[1]["type"])
	assert.Equal(t, "audit.switch_off", got[2]["type"])
	assert.Equal(t, "", got[2]["user"])
}
