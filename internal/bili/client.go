// Package bili is the bilibili web API client: user search, space info,
// relation stats, upload listings and keyword search, normalized into
// plain records.
package bili

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/httpx"
)

const defaultBase = "https://api.bilibili.com"

// APIError is a response whose envelope code is non-zero.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bili api error code=%d message=%q", e.Code, e.Message)
}

// envelope is the uniform {code, data} response wrapper.
type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// Client talks to the bilibili API through the retrying httpx client.
type Client struct {
	http  *httpx.Client
	base  string
	stats *statCache
}

// New builds a client from the bot configuration.
func New(cfg config.Config) *Client {
	cookie := cfg.BiliCookie
	if cfg.BiliSessData != "" {
		if cookie != "" {
			cookie = "SESSDATA=" + cfg.BiliSessData + "; " + cookie
		} else {
			cookie = "SESSDATA=" + cfg.BiliSessData
		}
	}
	h := httpx.New(httpx.Config{
		HTTPClient: cfg.HTTPClient,
		UserAgent:  cfg.UserAgent,
		Referer:    "https://www.bilibili.com/",
		Origin:     "https://www.bilibili.com",
		Cookie:     cookie,
		Retries:    cfg.RequestRetries,
		Sleep:      cfg.RequestSleep,
		Backoff:    cfg.RequestBackoff,
	})
	return &Client{http: h, base: defaultBase, stats: newStatCache(cfg.RedisURL)}
}

// NewWithTransport wires an explicit httpx client and base URL; tests use it.
func NewWithTransport(h *httpx.Client, base string) *Client {
	if base == "" {
		base = defaultBase
	}
	return &Client{http: h, base: base, stats: newStatCache("")}
}

// apiGet fetches an envelope and enforces the code==0 contract.
// 412/429 and app code -799 are the platform's throttle signals.
func apiGet[T any](ctx context.Context, c *Client, path string, params url.Values) (T, error) {
	var env envelope[T]
	err := c.http.GetJSON(ctx, c.base+path, params, &env, httpx.Options{
		RetryStatuses: []int{412, 429},
		RetryAppCodes: []int{-799},
	})
	if err != nil {
		return env.Data, err
	}
	if env.Code != 0 {
		return env.Data, &APIError{Code: env.Code, Message: env.Message}
	}
	return env.Data, nil
}

type rawSearchUser struct {
	MID   int64  `json:"mid"`
	Uname string `json:"uname"`
	Fans  int64  `json:"fans"`
}

// SearchUsers searches creators by name.
func (c *Client) SearchUsers(ctx context.Context, keyword string, page, pageSize int) ([]User, error) {
	params := url.Values{}
	params.Set("search_type", "bili_user")
	params.Set("keyword", keyword)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	data, err := apiGet[struct {
		Result []rawSearchUser `json:"result"`
	}](ctx, c, "/x/web-interface/search/type", params)
	if err != nil {
		return nil, err
	}

	users := make([]User, 0, len(data.Result))
	for _, r := range data.Result {
		users = append(users, User{
			MID:      strconv.FormatInt(r.MID, 10),
			Name:     r.Uname,
			Follower: r.Fans,
		})
	}
	return users, nil
}

type rawSpaceInfo struct {
	MID      int64  `json:"mid"`
	Name     string `json:"name"`
	Sign     string `json:"sign"`
	Level    int    `json:"level"`
	Face     string `json:"face"`
	Follower int64  `json:"follower"`
}

// UserInfo fetches a creator's profile. The follower count comes from the
// relation-stat endpoint; when that fails the profile's own (often stale)
// follower field is used instead.
func (c *Client) UserInfo(ctx context.Context, mid string) (User, error) {
	params := url.Values{}
	params.Set("mid", mid)

	d, err := apiGet[rawSpaceInfo](ctx, c, "/x/space/acc/info", params)
	if err != nil {
		return User{}, err
	}
	u := User{
		MID:      strconv.FormatInt(d.MID, 10),
		Name:     d.Name,
		Sign:     d.Sign,
		Level:    d.Level,
		Face:     d.Face,
		Follower: d.Follower,
	}
	if follower, err := c.RelationStat(ctx, mid); err == nil {
		u.Follower = follower
	} else {
		slog.Debug("bili: relation stat fallback", slog.String("mid", mid), slog.Any("error", err))
	}
	return u, nil
}

// RelationStat returns a creator's follower count. Lookups are cached:
// a keyword digest resolves each distinct owner once.
func (c *Client) RelationStat(ctx context.Context, mid string) (int64, error) {
	if n, ok := c.stats.get(ctx, mid); ok {
		return n, nil
	}

	params := url.Values{}
	params.Set("vmid", mid)

	d, err := apiGet[struct {
		Follower int64 `json:"follower"`
	}](ctx, c, "/x/relation/stat", params)
	if err != nil {
		return 0, err
	}
	c.stats.set(ctx, mid, d.Follower)
	return d.Follower, nil
}

type rawSpaceVideo struct {
	Bvid        string `json:"bvid"`
	Aid         int64  `json:"aid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pic         string `json:"pic"`
	Created     int64  `json:"created"`
	Length      string `json:"length"`
	Play        Count  `json:"play"`
	Comment     Count  `json:"comment"`
	MID         int64  `json:"mid"`
	Author      string `json:"author"`
}

// ListVideos returns a creator's uploads, newest first.
func (c *Client) ListVideos(ctx context.Context, mid string, page, pageSize int) ([]Video, error) {
	params := url.Values{}
	params.Set("mid", mid)
	params.Set("pn", strconv.Itoa(page))
	params.Set("ps", strconv.Itoa(pageSize))
	params.Set("order", "pubdate")

	data, err := apiGet[struct {
		List struct {
			Vlist []rawSpaceVideo `json:"vlist"`
		} `json:"list"`
	}](ctx, c, "/x/space/arc/search", params)
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(data.List.Vlist))
	for _, v := range data.List.Vlist {
		videos = append(videos, Video{
			BVID:        v.Bvid,
			AID:         v.Aid,
			Title:       v.Title,
			Description: v.Description,
			Pic:         v.Pic,
			PubDate:     v.Created,
			Length:      v.Length,
			Play:        v.Play,
			Comment:     v.Comment,
			MID:         strconv.FormatInt(v.MID, 10),
			Author:      v.Author,
			URL:         videoURL(v.Bvid),
		})
	}
	return videos, nil
}

type rawSearchVideo struct {
	Bvid        string `json:"bvid"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Pic         string `json:"pic"`
	Pubdate     int64  `json:"pubdate"`
	Author      string `json:"author"`
	MID         int64  `json:"mid"`
	Play        Count  `json:"play"`
	Comment     Count  `json:"comment"`
}

// SearchVideos searches videos by keyword, 1-indexed pages.
func (c *Client) SearchVideos(ctx context.Context, keyword string, page, pageSize int) ([]Video, error) {
	params := url.Values{}
	params.Set("search_type", "video")
	params.Set("keyword", keyword)
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	data, err := apiGet[struct {
		Result []rawSearchVideo `json:"result"`
	}](ctx, c, "/x/web-interface/search/type", params)
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(data.Result))
	for _, v := range data.Result {
		videos = append(videos, Video{
			BVID:        v.Bvid,
			Title:       v.Title,
			Description: v.Description,
			Pic:         v.Pic,
			PubDate:     v.Pubdate,
			Author:      v.Author,
			MID:         strconv.FormatInt(v.MID, 10),
			Play:        v.Play,
			Comment:     v.Comment,
			URL:         videoURL(v.Bvid),
		})
	}
	return videos, nil
}

type rawVideoDetail struct {
	Bvid    string `json:"bvid"`
	Title   string `json:"title"`
	Desc    string `json:"desc"`
	Pic     string `json:"pic"`
	Pubdate int64  `json:"pubdate"`
	Owner   struct {
		MID  int64  `json:"mid"`
		Name string `json:"name"`
	} `json:"owner"`
	Stat struct {
		View  Count `json:"view"`
		Reply Count `json:"reply"`
	} `json:"stat"`
	Duration int64 `json:"duration"`
}

// VideoDetail fetches one video by bvid.
func (c *Client) VideoDetail(ctx context.Context, bvid string) (Video, error) {
	params := url.Values{}
	params.Set("bvid", bvid)

	d, err := apiGet[rawVideoDetail](ctx, c, "/x/web-interface/view", params)
	if err != nil {
		return Video{}, err
	}
	return Video{
		BVID:        d.Bvid,
		Title:       d.Title,
		Description: d.Desc,
		Pic:         d.Pic,
		PubDate:     d.Pubdate,
		Length:      strconv.FormatInt(d.Duration, 10),
		Play:        d.Stat.View,
		Comment:     d.Stat.Reply,
		MID:         strconv.FormatInt(d.Owner.MID, 10),
		Author:      d.Owner.Name,
		URL:         videoURL(d.Bvid),
	}, nil
}
