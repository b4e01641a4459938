package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/command"
	"github.com/wanzibot/wanzi/internal/state"
)

type fakeSender struct {
	chatID string
	text   string
	calls  int
}

func (f *fakeSender) SendTextToChat(_ context.Context, chatID, text string) error {
	f.calls++
	f.chatID = chatID
	f.text = text
	return nil
}

type stubPlatform struct{}

func (stubPlatform) UserInfo(context.Context, string) (bili.User, error) {
	return bili.User{}, errors.New("not found")
}

func (stubPlatform) SearchUsers(context.Context, string, int, int) ([]bili.User, error) {
	return nil, nil
}

func (stubPlatform) ListVideos(context.Context, string, int, int) ([]bili.Video, error) {
	return nil, nil
}

func newServer(t *testing.T, verifyToken string) (*Server, *fakeSender) {
	t.Helper()
	store := state.NewStore(filepath.Join(t.TempDir(), "state.json"))
	sender := &fakeSender{}
	s := New(command.New(stubPlatform{}, store, ""), sender, verifyToken)
	s.async = false
	return s, sender
}

func post(t *testing.T, h http.Handler, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/feishu/callback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestURLVerificationChallenge(t *testing.T) {
	s, _ := newServer(t, "secret")
	rec := post(t, s.Routes(), map[string]any{
		"type": "url_verification", "challenge": "abc123", "token": "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "abc123", out["challenge"])
}

func TestURLVerificationBadToken(t *testing.T) {
	s, _ := newServer(t, "secret")
	rec := post(t, s.Routes(), map[string]any{
		"type": "url_verification", "challenge": "abc123", "token": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestEventTokenFromHeaderBlock(t *testing.T) {
	s, _ := newServer(t, "secret")
	rec := post(t, s.Routes(), map[string]any{
		"header": map[string]string{"token": "secret"},
		"event":  map[string]any{},
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(t, s.Routes(), map[string]any{
		"header": map[string]string{"token": "nope"},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestInvalidJSON(t *testing.T) {
	s, _ := newServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/feishu/callback", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func textEvent(chatID, text string) map[string]any {
	content, _ := json.Marshal(map[string]string{"text": text})
	return map[string]any{
		"event": map[string]any{
			"message": map[string]any{
				"message_type": "text",
				"chat_id":      chatID,
				"content":      string(content),
			},
		},
	}
}

func TestTextEventGetsReply(t *testing.T) {
	s, sender := newServer(t, "")
	rec := post(t, s.Routes(), textEvent("oc_1", "列出关注"))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, 1, sender.calls)
	assert.Equal(t, "oc_1", sender.chatID)
	assert.Equal(t, "当前没有关注任何UP。", sender.text)
}

func TestNonTextEventIgnored(t *testing.T) {
	s, sender := newServer(t, "")
	rec := post(t, s.Routes(), map[string]any{
		"event": map[string]any{
			"message": map[string]any{"message_type": "image", "chat_id": "oc_1"},
		},
	})
	// accepted, but no reply goes out
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, sender.calls)
}

func TestMissingChatIDIgnored(t *testing.T) {
	s, sender := newServer(t, "")
	post(t, s.Routes(), textEvent("", "列出关注"))
	assert.Zero(t, sender.calls)
}

func TestHealth(t *testing.T) {
	s, _ := newServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestMetricsExposed(t *testing.T) {
	s, _ := newServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "wanzi_webhook_events_total")
}
