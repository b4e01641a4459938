// Package notify pushes digest texts to the configured chat channel.
// The channel set is closed: Feishu webhook, Feishu app (token), Telegram.
package notify

import (
	"context"

	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/httpx"
)

// Notifier sends one text message to the bot's channel.
type Notifier interface {
	SendText(ctx context.Context, text string) error
}

// Select picks the outbound channel once at startup. An explicit
// WANZI_NOTIFY wins; otherwise Telegram when both token and chat id are
// configured, else the Feishu webhook. Missing credentials surface on
// first send, not here.
func Select(cfg config.Config, h *httpx.Client) Notifier {
	switch cfg.NotifyChannel {
	case "telegram":
		return NewTelegram(cfg)
	case "feishu":
		return NewFeishuWebhook(cfg.FeishuWebhook, h)
	}
	if cfg.TGBotToken != "" && cfg.TGChatID != "" {
		return NewTelegram(cfg)
	}
	return NewFeishuWebhook(cfg.FeishuWebhook, h)
}
