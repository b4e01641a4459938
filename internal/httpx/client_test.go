package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(retries int, sleeps *[]time.Duration) *Client {
	return New(Config{
		Retries: retries,
		Sleep:   200 * time.Millisecond,
		Backoff: 600 * time.Millisecond,
		SleepFn: func(d time.Duration) { *sleeps = append(*sleeps, d) },
		Rand:    func() float64 { return 0 },
	})
}

func TestGetJSONRetryOnStatusThenSuccess(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{"ok": true}})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(3, &sleeps)

	var out struct {
		Code int `json:"code"`
		Data struct {
			OK bool `json:"ok"`
		} `json:"data"`
	}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out, Options{
		RetryStatuses: []int{412, 429},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Data.OK || out.Code != 0 {
		t.Errorf("unexpected body: %+v", out)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
	if len(sleeps) != 3 {
		t.Errorf("expected a sleep before each attempt, got %d", len(sleeps))
	}
}

func TestGetJSONThrottleFormula(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(2, &sleeps)

	err := c.GetJSON(context.Background(), srv.URL, nil, nil, Options{RetryStatuses: []int{429}})
	if err == nil {
		t.Fatal("expected status error")
	}

	// sleep + backoff*2^attempt, zero jitter injected
	want := []time.Duration{
		800 * time.Millisecond,
		1400 * time.Millisecond,
		2600 * time.Millisecond,
	}
	if len(sleeps) != len(want) {
		t.Fatalf("expected %d sleeps, got %d", len(want), len(sleeps))
	}
	for i, d := range want {
		if sleeps[i] != d {
			t.Errorf("sleep[%d] = %v, want %v", i, sleeps[i], d)
		}
	}
}

func TestGetJSONStatusErrorNotRetried(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(3, &sleeps)

	err := c.GetJSON(context.Background(), srv.URL, nil, nil, Options{RetryStatuses: []int{412, 429}})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Status != 404 {
		t.Errorf("status = %d, want 404", se.Status)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected 1 attempt, got %d", got)
	}
}

func TestGetJSONRetryOnAppCode(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		if n == 1 {
			json.NewEncoder(w).Encode(map[string]any{"code": -799})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0, "data": map[string]any{}})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(3, &sleeps)

	var out struct {
		Code int `json:"code"`
	}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out, Options{RetryAppCodes: []int{-799}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Code != 0 {
		t.Errorf("code = %d, want 0", out.Code)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestGetJSONAppCodeExhaustedReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"code": -799, "message": "throttled"})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(1, &sleeps)

	var out struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out, Options{RetryAppCodes: []int{-799}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The caller owns the envelope check.
	if out.Code != -799 || out.Message != "throttled" {
		t.Errorf("unexpected body: %+v", out)
	}
}

func TestGetJSONQueryParams(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(0, &sleeps)

	params := url.Values{}
	params.Set("mid", "12345")
	params.Set("pn", "1")
	if err := c.GetJSON(context.Background(), srv.URL, params, nil, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery.Get("mid") != "12345" || gotQuery.Get("pn") != "1" {
		t.Errorf("query not forwarded: %v", gotQuery)
	}
}

func TestPostJSONRetriesOn412(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := newTestClient(2, &sleeps)

	var out struct {
		Code int `json:"code"`
	}
	err := c.PostJSON(context.Background(), srv.URL, map[string]string{"k": "v"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestSessionHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		json.NewEncoder(w).Encode(map[string]any{"code": 0})
	}))
	defer srv.Close()

	var sleeps []time.Duration
	c := New(Config{
		UserAgent: "test-agent",
		Referer:   "https://www.bilibili.com/",
		Origin:    "https://www.bilibili.com",
		Cookie:    "SESSDATA=abc; buvid=xyz",
		SleepFn:   func(d time.Duration) { sleeps = append(sleeps, d) },
		Rand:      func() float64 { return 0 },
	})
	if err := c.GetJSON(context.Background(), srv.URL, nil, nil, Options{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Get("User-Agent") != "test-agent" {
		t.Errorf("User-Agent = %q", got.Get("User-Agent"))
	}
	if got.Get("Referer") != "https://www.bilibili.com/" {
		t.Errorf("Referer = %q", got.Get("Referer"))
	}
	if got.Get("Cookie") != "SESSDATA=abc; buvid=xyz" {
		t.Errorf("Cookie = %q", got.Get("Cookie"))
	}
}
