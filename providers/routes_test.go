package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/orchestra-mcp/chat/config"
	"github.com/orchestra-mcp/chat/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.ChatConfig {
	t.Helper()
	return &config.ChatConfig{
		Host:            "127.0.0.1",
		Port:            8080,
		JWTSecret:       "test-secret",
		JWTIssuer:       "task-chat",
		ChatPath:        "/ws/chat",
		HistoryLimit:    50,
		SendBuffer:      32,
		MaxMessageSize:  4096,
		PingInterval:    time.Minute,
		PongTimeout:     2 * time.Minute,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
		StoreDriver:     "sqlite",
		SQLitePath:      filepath.Join(t.TempDir(), "chat.db"),
	}
}

func newTestPlugin(t *testing.T) *ChatPlugin {
	t.Helper()
	p := NewChatPlugin(testConfig(t), zerolog.Nop())
	require.NoError(t, p.Activate())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = p.Deactivate(ctx)
	})
	return p
}

func issue(t *testing.T, p *ChatPlugin, id int64, username, role string) string {
	t.Helper()
	tok, err := p.verifier.Issue(types.Identity{UserID: id, Username: username, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func doJSON(t *testing.T, p *ChatPlugin, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := p.App().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out), string(body))
	return resp.StatusCode, out
}

func TestHealth(t *testing.T) {
	p := newTestPlugin(t)
	code, body := doJSON(t, p, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestIndexListsEndpoints(t *testing.T) {
	p := newTestPlugin(t)
	code, body := doJSON(t, p, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "chat", body["name"])
	endpoints, ok := body["endpoints"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/ws/chat", endpoints["websocket"])
}

func TestOnlineWithNobodyConnected(t *testing.T) {
	p := newTestPlugin(t)
	code, body := doJSON(t, p, httptest.NewRequest(http.MethodGet, "/api/chat/online", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["online"])
	assert.Equal(t, []any{}, body["users"])
}

func TestWebSocketInfo(t *testing.T) {
	p := newTestPlugin(t)
	code, body := doJSON(t, p, httptest.NewRequest(http.MethodGet, "/ws/info", nil))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["websocket"])
	assert.Equal(t, "/ws/chat", body["endpoint"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestUnknownRouteUsesErrorBody(t *testing.T) {
	p := newTestPlugin(t)
	code, body := doJSON(t, p, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(http.StatusNotFound), body["code"])
	assert.NotEmpty(t, body["error"])
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	p := newTestPlugin(t)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"user role", "Bearer " + issue(t, p, 2, "bob", "USER"), http.StatusForbidden},
		{"admin role", "Bearer " + issue(t, p, 1, "root", RoleAdmin), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/admin/chat/sessions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			code, body := doJSON(t, p, req)
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusOK {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, float64(0), body["count"])
			} else {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, float64(tt.want), body["code"])
			}
		})
	}
}

func TestAdminNotifyValidatesBody(t *testing.T) {
	p := newTestPlugin(t)
	auth := "Bearer " + issue(t, p, 1, "root", RoleAdmin)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed", `{"message":`, http.StatusBadRequest},
		{"empty message", `{"message":""}`, http.StatusUnprocessableEntity},
		{"too long", `{"message":"` + strings.Repeat("x", 1001) + `"}`, http.StatusUnprocessableEntity},
		{"ok", `{"message":"maintenance at noon"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/admin/chat/notify", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", auth)

			code, body := doJSON(t, p, req)
			assert.Equal(t, tt.want, code)
			if tt.want == http.StatusOK {
				assert.Equal(t, float64(0), body["delivered"])
			}
		})
	}
}

func TestAdminSessionLookup(t *testing.T) {
	p := newTestPlugin(t)
	ln := startServer(t, p)
	auth := "Bearer " + issue(t, p, 1, "root", RoleAdmin)

	alice := dial(t, ln, "?token="+issue(t, p, 7, "alice", "USER"), nil)
	readEnvelope(t, alice)
	readEnvelope(t, alice)

	sessions := p.service.Sessions()
	require.Len(t, sessions, 1)
	id := sessions[0].ID

	req := httptest.NewRequest(http.MethodGet, "/api/admin/chat/sessions/"+id, nil)
	req.Header.Set("Authorization", auth)
	code, body := doJSON(t, p, req)
	require.Equal(t, http.StatusOK, code)
	session, ok := body["session"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, id, session["id"])
	assert.Equal(t, float64(7), session["userId"])
	assert.Equal(t, "alice", session["username"])
	assert.NotEmpty(t, session["connectedAt"])

	req = httptest.NewRequest(http.MethodGet, "/api/admin/chat/sessions/7_missing", nil)
	req.Header.Set("Authorization", auth)
	code, body = doJSON(t, p, req)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "session not found", body["error"])
}
