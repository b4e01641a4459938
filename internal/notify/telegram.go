package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/metrics"
)

// TelegramClient is a minimal Bot API client: sendMessage plus getUpdates
// long polling for the command loop.
type TelegramClient struct {
	token       string
	base        string
	http        *http.Client
	poll        *http.Client
	pollTimeout time.Duration
}

// NewTelegramClient builds a client; the token may be empty, in which
// case every call fails with ErrNotConfigured.
func NewTelegramClient(cfg config.Config) *TelegramClient {
	h := cfg.HTTPClient
	if h == nil {
		h = &http.Client{Timeout: 10 * time.Second}
	}
	return &TelegramClient{
		token: cfg.TGBotToken,
		base:  "https://api.telegram.org/bot" + cfg.TGBotToken,
		http:  h,
		// long polls must outlive the per-request timeout
		poll:        &http.Client{Timeout: cfg.TGPollTimeout + 10*time.Second},
		pollTimeout: cfg.TGPollTimeout,
	}
}

func (c *TelegramClient) configured() error {
	if c.token == "" {
		return errors.Join(ErrNotConfigured, errors.New("TG_BOT_TOKEN is empty"))
	}
	return nil
}

// SendText sends a text message to a chat.
func (c *TelegramClient) SendText(ctx context.Context, chatID, text string) error {
	if err := c.configured(); err != nil {
		return err
	}
	body, _ := json.Marshal(map[string]string{"chat_id": chatID, "text": text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("telegram send: http status %d", resp.StatusCode)
	}
	return nil
}

// Update is one getUpdates entry.
type Update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
	EditedMessage *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"edited_message"`
}

// ChatAndText extracts the chat id and text, preferring the live message.
// ok is false for non-text updates.
func (u Update) ChatAndText() (chatID, text string, ok bool) {
	m := u.Message
	if m == nil {
		m = u.EditedMessage
	}
	if m == nil || m.Text == "" {
		return "", "", false
	}
	return strconv.FormatInt(m.Chat.ID, 10), m.Text, true
}

// GetUpdates long-polls for new updates starting at offset.
func (c *TelegramClient) GetUpdates(ctx context.Context, offset int64) ([]Update, error) {
	if err := c.configured(); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("timeout", strconv.Itoa(int(c.pollTimeout/time.Second)))
	if offset > 0 {
		params.Set("offset", strconv.FormatInt(offset, 10))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.poll.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("telegram getUpdates: http status %d", resp.StatusCode)
	}

	var out struct {
		OK     bool     `json:"ok"`
		Result []Update `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("telegram getUpdates: %w", err)
	}
	if !out.OK {
		return nil, errors.New("telegram getUpdates: response not ok")
	}
	return out.Result, nil
}

// Telegram is the Notifier over a fixed chat.
type Telegram struct {
	client *TelegramClient
	chatID string
}

// NewTelegram wires the bot token and target chat from config.
func NewTelegram(cfg config.Config) *Telegram {
	return &Telegram{client: NewTelegramClient(cfg), chatID: cfg.TGChatID}
}

// SendText pushes text to the configured chat.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	if t.chatID == "" {
		return errors.Join(ErrNotConfigured, errors.New("TG_CHAT_ID is empty"))
	}
	if err := t.client.SendText(ctx, t.chatID, text); err != nil {
		return err
	}
	metrics.Notifications.Inc()
	return nil
}
