package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/metrics"
)

const (
	feishuTokenURL = "https://open.feishu.cn/open-apis/auth/v3/tenant_access_token/internal"
	feishuSendURL  = "https://open.feishu.cn/open-apis/im/v1/messages"

	// tokenSafetyMargin refreshes the tenant token a minute before the
	// platform's reported expiry.
	tokenSafetyMargin = 60 * time.Second
)

// FeishuApp sends messages through the Feishu bot API with a cached
// tenant access token.
type FeishuApp struct {
	appID     string
	appSecret string
	http      *http.Client

	tokenURL string
	sendURL  string
	now      func() time.Time

	mu       sync.Mutex
	token    string
	expireAt time.Time
}

// NewFeishuApp wires the app credentials from config.
func NewFeishuApp(cfg config.Config) *FeishuApp {
	h := cfg.HTTPClient
	if h == nil {
		h = &http.Client{Timeout: 10 * time.Second}
	}
	return &FeishuApp{
		appID:     cfg.FeishuAppID,
		appSecret: cfg.FeishuAppSecret,
		http:      h,
		tokenURL:  feishuTokenURL,
		sendURL:   feishuSendURL,
		now:       time.Now,
	}
}

type tokenResponse struct {
	Code              int    `json:"code"`
	Msg               string `json:"msg"`
	TenantAccessToken string `json:"tenant_access_token"`
	Expire            int64  `json:"expire"`
}

// tenantToken returns the cached token, exchanging credentials when the
// cache is empty or within the safety margin of expiry.
func (f *FeishuApp) tenantToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && f.now().Before(f.expireAt.Add(-tokenSafetyMargin)) {
		return f.token, nil
	}
	if f.appID == "" || f.appSecret == "" {
		return "", errors.Join(ErrNotConfigured, errors.New("FEISHU_APP_ID/FEISHU_APP_SECRET are empty"))
	}

	body, _ := json.Marshal(map[string]string{
		"app_id":     f.appID,
		"app_secret": f.appSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.tokenURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("feishu token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("feishu token: http status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return "", fmt.Errorf("feishu token: %w", err)
	}
	if tr.Code != 0 {
		return "", fmt.Errorf("feishu token error code=%d msg=%q", tr.Code, tr.Msg)
	}

	f.token = tr.TenantAccessToken
	f.expireAt = f.now().Add(time.Duration(tr.Expire) * time.Second)
	return f.token, nil
}

// SendTextToChat sends a text message to a chat id via the bot API.
func (f *FeishuApp) SendTextToChat(ctx context.Context, chatID, text string) error {
	token, err := f.tenantToken(ctx)
	if err != nil {
		return err
	}

	content, _ := json.Marshal(textContent{Text: text})
	body, _ := json.Marshal(map[string]string{
		"receive_id": chatID,
		"msg_type":   "text",
		"content":    string(content),
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		f.sendURL+"?receive_id_type=chat_id", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := f.http.Do(req)
	if err != nil {
		return fmt.Errorf("feishu send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("feishu send: http status %d", resp.StatusCode)
	}

	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("feishu send: %w", err)
	}
	if out.Code != 0 {
		return fmt.Errorf("feishu send error code=%d msg=%q", out.Code, out.Msg)
	}
	metrics.CommandReplies.Inc()
	return nil
}
