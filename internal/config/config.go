// Package config holds all bot configuration, built once in main and
// passed explicitly into each component.
package config

import (
	"net/http"
	"strings"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/joho/godotenv"
)

// DefaultUserAgent mimics a desktop Chrome; bilibili rejects obvious bots.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// Config is the full runtime configuration.
type Config struct {
	// Feishu
	FeishuWebhook           string
	FeishuAppID             string
	FeishuAppSecret         string
	FeishuVerificationToken string
	FeishuEncryptKey        string
	FeishuBotName           string

	// Telegram
	TGBotToken     string
	TGChatID       string
	TGBotName      string
	TGPollTimeout  time.Duration
	TGPollInterval time.Duration

	// NotifyChannel forces the outbound channel: "feishu" or "telegram".
	// Empty = pick automatically (telegram when token+chat are set).
	NotifyChannel string

	// bilibili auth
	BiliSessData string
	BiliCookie   string
	UserAgent    string

	// Remote client politeness / retry
	RequestTimeout time.Duration
	RequestSleep   time.Duration
	RequestBackoff time.Duration
	RequestRetries int

	// Keyword digest
	FollowerMax   int64
	KeywordDays   int
	KeywordTopK   int
	EnableKeyword bool

	StatePath string
	RedisURL  string
	Debug     bool

	HTTPClient *http.Client
}

// Load reads configuration from the environment, after best-effort
// loading of a .env file from the working directory.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		FeishuWebhook:           env.Str("FEISHU_WEBHOOK", ""),
		FeishuAppID:             env.Str("FEISHU_APP_ID", ""),
		FeishuAppSecret:         env.Str("FEISHU_APP_SECRET", ""),
		FeishuVerificationToken: env.Str("FEISHU_VERIFICATION_TOKEN", ""),
		FeishuEncryptKey:        env.Str("FEISHU_ENCRYPT_KEY", ""),
		FeishuBotName:           env.Str("FEISHU_BOT_NAME", "丸子"),

		TGBotToken:     env.Str("TG_BOT_TOKEN", ""),
		TGChatID:       env.Str("TG_CHAT_ID", ""),
		TGBotName:      env.Str("TG_BOT_NAME", ""),
		TGPollTimeout:  env.Duration("TG_POLL_TIMEOUT", 25*time.Second),
		TGPollInterval: env.Duration("TG_POLL_INTERVAL", time.Second),

		NotifyChannel: strings.ToLower(env.Str("WANZI_NOTIFY", "")),

		BiliSessData: env.Str("BILI_SESSDATA", ""),
		BiliCookie:   env.Str("BILI_COOKIE", ""),
		UserAgent:    env.Str("WANZI_UA", DefaultUserAgent),

		RequestTimeout: env.Duration("WANZI_TIMEOUT", 10*time.Second),
		RequestSleep:   env.Duration("WANZI_SLEEP", 200*time.Millisecond),
		RequestBackoff: env.Duration("WANZI_BACKOFF", 600*time.Millisecond),
		RequestRetries: env.Int("WANZI_RETRIES", 3),

		FollowerMax:   int64(env.Int("WANZI_FOLLOWER_MAX", 10000)),
		KeywordDays:   env.Int("WANZI_KEYWORD_DAYS", 7),
		KeywordTopK:   env.Int("WANZI_KEYWORD_TOPK", 10),
		EnableKeyword: boolEnv("WANZI_ENABLE_KEYWORD", true),

		StatePath: env.Str("WANZI_STATE_PATH", "data/state.json"),
		RedisURL:  env.Str("REDIS_URL", ""),
		Debug:     boolEnv("WANZI_DEBUG", false),

		HTTPClient: &http.Client{Timeout: env.Duration("WANZI_TIMEOUT", 10*time.Second)},
	}
}

// boolEnv accepts the usual truthy spellings.
func boolEnv(key string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(env.Str(key, "")))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	}
	return false
}
