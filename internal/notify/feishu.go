package notify

import (
	"context"
	"errors"

	"github.com/wanzibot/wanzi/internal/httpx"
	"github.com/wanzibot/wanzi/internal/metrics"
)

// ErrNotConfigured marks a send attempted without the channel's credentials.
var ErrNotConfigured = errors.New("notify: channel not configured")

// FeishuWebhook posts text messages to a Feishu custom-bot webhook.
type FeishuWebhook struct {
	webhook string
	http    *httpx.Client
}

// NewFeishuWebhook wires the webhook URL and the retrying client.
func NewFeishuWebhook(webhook string, h *httpx.Client) *FeishuWebhook {
	return &FeishuWebhook{webhook: webhook, http: h}
}

type textContent struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	MsgType string      `json:"msg_type"`
	Content textContent `json:"content"`
}

// SendText posts {msg_type: "text", content: {text}} to the webhook.
func (f *FeishuWebhook) SendText(ctx context.Context, text string) error {
	if f.webhook == "" {
		return errors.Join(ErrNotConfigured, errors.New("FEISHU_WEBHOOK is empty"))
	}
	payload := webhookPayload{MsgType: "text", Content: textContent{Text: text}}
	if err := f.http.PostJSON(ctx, f.webhook, payload, nil); err != nil {
		return err
	}
	metrics.Notifications.Inc()
	return nil
}
