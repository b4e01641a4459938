// Package httpx is the retrying JSON client for the bilibili and Feishu
// APIs. Every attempt, including the first, is preceded by a politeness
// sleep: this is deliberate throttling against rate-limited endpoints,
// not plain backoff.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/wanzibot/wanzi/internal/metrics"
)

const maxBodyBytes = 4 << 20

// Config controls the client's session headers and retry/throttle policy.
type Config struct {
	HTTPClient *http.Client
	UserAgent  string
	Referer    string
	Origin     string
	// Cookie is sent verbatim as the Cookie header when non-empty
	// ("key=value; key2=value2").
	Cookie string

	// Retries is the number of retries after the first attempt.
	Retries int
	// Sleep + Backoff*2^attempt + jitter[0,200ms) before every attempt.
	Sleep   time.Duration
	Backoff time.Duration

	// SleepFn and Rand override the real clock in tests. Nil means
	// time.Sleep and rand.Float64.
	SleepFn func(time.Duration)
	Rand    func() float64
}

// Options select the retry triggers for a single GET.
type Options struct {
	RetryStatuses []int
	RetryAppCodes []int
}

// StatusError is a non-2xx/3xx response that was not retried away.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.URL)
}

// Client issues throttled, retrying JSON requests.
type Client struct {
	cfg Config

	// injected in tests
	sleepFn func(time.Duration)
	randFn  func() float64
}

// New builds a client. A nil HTTPClient falls back to a 10s-timeout default.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	c := &Client{cfg: cfg, sleepFn: cfg.SleepFn, randFn: cfg.Rand}
	if c.sleepFn == nil {
		c.sleepFn = time.Sleep
	}
	if c.randFn == nil {
		c.randFn = rand.Float64
	}
	return c
}

// throttle sleeps before an attempt. Fires on attempt 0 too.
func (c *Client) throttle(attempt int) {
	jitter := time.Duration(c.randFn() * float64(200*time.Millisecond))
	c.sleepFn(c.cfg.Sleep + c.cfg.Backoff*(1<<attempt) + jitter)
}

func (c *Client) setHeaders(req *http.Request) {
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Origin != "" {
		req.Header.Set("Origin", c.cfg.Origin)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	if c.cfg.Cookie != "" {
		req.Header.Set("Cookie", c.cfg.Cookie)
	}
}

// GetJSON fetches url with params and decodes the body into v.
// Attempts are retried while attempts remain when the HTTP status is in
// opts.RetryStatuses, or — after a successful status — when the body's
// application "code" is in opts.RetryAppCodes. When app-code retries run
// out the last body is still decoded into v: envelope checking belongs to
// the caller.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, v any, opts Options) error {
	u := rawURL
	if len(params) > 0 {
		u = rawURL + "?" + params.Encode()
	}

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		c.throttle(attempt)
		metrics.HTTPRequests.Inc()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		c.setHeaders(req)

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("get %s: %w", rawURL, err)
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if statusIn(resp.StatusCode, opts.RetryStatuses) && attempt < c.cfg.Retries {
			metrics.HTTPRetries.Inc()
			slog.Debug("httpx: retrying on status",
				slog.Int("status", resp.StatusCode), slog.Int("attempt", attempt))
			continue
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Status: resp.StatusCode, URL: rawURL}
		}

		code, err := peekCode(body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", rawURL, err)
		}
		if codeIn(code, opts.RetryAppCodes) && attempt < c.cfg.Retries {
			metrics.HTTPRetries.Inc()
			slog.Debug("httpx: retrying on app code",
				slog.Int("code", *code), slog.Int("attempt", attempt))
			continue
		}

		if v == nil {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return fmt.Errorf("decode %s: %w", rawURL, err)
		}
		return nil
	}
	// Retries+1 attempts always return inside the loop; keep the
	// compiler happy.
	return fmt.Errorf("get %s: retries exhausted", rawURL)
}

// PostJSON posts body as JSON and decodes the response into v.
// Statuses 412 and 429 are retried while attempts remain.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body any, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode body: %w", err)
	}

	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		c.throttle(attempt)
		metrics.HTTPRequests.Inc()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("post %s: %w", rawURL, err)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}

		if (resp.StatusCode == http.StatusPreconditionFailed || resp.StatusCode == http.StatusTooManyRequests) &&
			attempt < c.cfg.Retries {
			metrics.HTTPRetries.Inc()
			continue
		}
		if resp.StatusCode >= 400 {
			return &StatusError{Status: resp.StatusCode, URL: rawURL}
		}

		if v == nil {
			return nil
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("decode %s: %w", rawURL, err)
		}
		return nil
	}
	return fmt.Errorf("post %s: retries exhausted", rawURL)
}

// peekCode extracts the envelope's application code without committing to
// a full response shape. Bodies with no code field yield nil.
func peekCode(body []byte) (*int, error) {
	var probe struct {
		Code *int `json:"code"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, err
	}
	return probe.Code, nil
}

func statusIn(status int, set []int) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func codeIn(code *int, set []int) bool {
	if code == nil {
		return false
	}
	for _, c := range set {
		if c == *code {
			return true
		}
	}
	return false
}
