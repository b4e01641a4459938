// Package command answers chat-style commands: follow, unfollow, list
// and free-text creator queries. Triggers are fixed Chinese phrases,
// evaluated as an ordered rule list — first match wins.
package command

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/report"
	"github.com/wanzibot/wanzi/internal/state"
)

const (
	msgUPNotFound  = "没找到该UP，请提供MID或空间链接。"
	msgUsage       = "请发送指令，例如：查询 xxx 近3天"
	msgNeedIdent   = "请提供UP名称/MID/空间链接，例如：查询 爱研究的摸鱼君 近3天"
	msgUnfollowed  = "已取消关注"
	msgNotFollowed = "未找到该关注"

	defaultQueryDays = 3
)

// Platform is the slice of the bilibili client the handlers use.
type Platform interface {
	UserInfo(ctx context.Context, mid string) (bili.User, error)
	SearchUsers(ctx context.Context, keyword string, page, pageSize int) ([]bili.User, error)
	ListVideos(ctx context.Context, mid string, page, pageSize int) ([]bili.Video, error)
}

// Handler executes chat commands against the platform and the store.
type Handler struct {
	platform Platform
	store    *state.Store
	botName  string

	now func() time.Time
}

// New wires a command handler. botName may be empty; when set, only
// messages mentioning it are handled.
func New(platform Platform, store *state.Store, botName string) *Handler {
	return &Handler{platform: platform, store: store, botName: botName, now: time.Now}
}

// rule maps a trigger phrase to its handler. extract returns the
// argument text and whether the rule fires.
type rule struct {
	extract func(t string) (string, bool)
	run     func(ctx context.Context, arg string) string
}

func (h *Handler) rules() []rule {
	return []rule{
		{
			extract: afterPhrase("取消关注"),
			run:     h.handleUnfollow,
		},
		{
			extract: anyPhrase("列出关注", "关注列表", "我的关注"),
			run:     func(ctx context.Context, _ string) string { return h.handleList() },
		},
		{
			extract: afterPhrase("关注"),
			run:     h.handleFollow,
		},
		{
			// fallback: everything is a query
			extract: func(t string) (string, bool) { return t, true },
			run:     h.handleQuery,
		},
	}
}

// Handle answers one message. ok is false when the message is not for
// this bot (name configured but not mentioned).
func (h *Handler) Handle(ctx context.Context, text string) (reply string, ok bool) {
	t := strings.TrimSpace(text)
	if t == "" {
		return msgUsage, true
	}

	if h.botName != "" {
		plain := strings.TrimPrefix(h.botName, "@")
		if !strings.Contains(t, h.botName) && !strings.Contains(t, "@"+plain) {
			return "", false
		}
		t = strings.TrimSpace(stripBotName(t, h.botName))
	}

	for _, r := range h.rules() {
		if arg, fire := r.extract(t); fire {
			return r.run(ctx, strings.TrimSpace(arg)), true
		}
	}
	return msgUsage, true // unreachable: the query rule always fires
}

func afterPhrase(phrase string) func(string) (string, bool) {
	return func(t string) (string, bool) {
		if _, after, found := strings.Cut(t, phrase); found {
			return after, true
		}
		return "", false
	}
}

func anyPhrase(phrases ...string) func(string) (string, bool) {
	return func(t string) (string, bool) {
		for _, p := range phrases {
			if strings.Contains(t, p) {
				return "", true
			}
		}
		return "", false
	}
}

var (
	daysRe        = regexp.MustCompile(`(近|最近|进)\s*(\d+)\s*天`)
	daysClauseRe  = regexp.MustCompile(`(近|最近|进)\s*\d+\s*天.*`)
	politenessRe  = regexp.MustCompile(`(我要|帮我|给我|查询|查|看看|看|获取)`)
	boilerplateRe = regexp.MustCompile(`(发布的内容|发布内容|发布|内容|的视频|视频)`)
)

// parseDays extracts the "近 N 天" recency clause, default 3, minimum 1.
func parseDays(t string) int {
	m := daysRe.FindStringSubmatch(t)
	if m == nil {
		return defaultQueryDays
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return defaultQueryDays
	}
	return max(1, n)
}

// cleanIdentifier strips request boilerplate and the recency clause,
// leaving the creator name / mid / URL.
func cleanIdentifier(t, botName string) string {
	if botName != "" {
		t = stripBotName(t, botName)
	}
	t = politenessRe.ReplaceAllString(t, "")
	t = daysClauseRe.ReplaceAllString(t, "")
	t = boilerplateRe.ReplaceAllString(t, "")
	return strings.TrimSpace(t)
}

func stripBotName(t, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return t
	}
	plain := strings.TrimPrefix(name, "@")
	t = strings.ReplaceAll(t, name, "")
	if plain != "" {
		t = strings.ReplaceAll(t, "@"+plain, "")
		t = strings.ReplaceAll(t, plain, "")
	}
	return t
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ResolveUp turns an identifier — numeric mid, space URL, or free-text
// name — into a creator profile. nil means not found; lookup errors
// degrade to not-found rather than reaching the chat user.
func ResolveUp(ctx context.Context, platform Platform, identifier string) *bili.User {
	if isDigits(identifier) {
		if u, err := platform.UserInfo(ctx, identifier); err == nil {
			return &u
		}
		return nil
	}
	if strings.Contains(identifier, "bilibili.com") && strings.Contains(identifier, "space") {
		parts := strings.Split(strings.TrimRight(identifier, "/"), "/")
		mid := parts[len(parts)-1]
		if isDigits(mid) {
			if u, err := platform.UserInfo(ctx, mid); err == nil {
				return &u
			}
		}
		return nil
	}
	users, err := platform.SearchUsers(ctx, identifier, 1, 5)
	if err != nil || len(users) == 0 {
		return nil
	}
	u, err := platform.UserInfo(ctx, users[0].MID)
	if err != nil {
		return nil
	}
	return &u
}

func (h *Handler) resolveUp(ctx context.Context, identifier string) *bili.User {
	return ResolveUp(ctx, h.platform, identifier)
}

func (h *Handler) handleFollow(ctx context.Context, identifier string) string {
	up := h.resolveUp(ctx, identifier)
	if up == nil {
		return msgUPNotFound
	}
	if err := h.store.WithState(func(s *state.State) error {
		s.AddUp(up.MID, up.Name)
		return nil
	}); err != nil {
		return msgUPNotFound
	}
	return fmt.Sprintf("已关注：%s (MID: %s)", up.Name, up.MID)
}

func (h *Handler) handleUnfollow(ctx context.Context, identifier string) string {
	var mid string
	switch up := h.resolveUp(ctx, identifier); {
	case up != nil:
		mid = up.MID
	case isDigits(identifier):
		mid = identifier
	default:
		return msgUPNotFound
	}

	removed := false
	if err := h.store.WithState(func(s *state.State) error {
		removed = s.RemoveUp(mid)
		return nil
	}); err != nil {
		return msgNotFollowed
	}
	if removed {
		return msgUnfollowed
	}
	return msgNotFollowed
}

func (h *Handler) handleList() string {
	var ups []state.UP
	if err := h.store.View(func(s *state.State) error {
		ups = append(ups, s.UPs...)
		return nil
	}); err != nil {
		return msgNotFollowed
	}
	return report.FollowListMessage(ups)
}

func (h *Handler) handleQuery(ctx context.Context, t string) string {
	days := parseDays(t)
	identifier := cleanIdentifier(t, h.botName)
	if identifier == "" {
		return msgNeedIdent
	}
	up := h.resolveUp(ctx, identifier)
	if up == nil {
		return msgUPNotFound
	}

	videos, err := h.platform.ListVideos(ctx, up.MID, 1, 30)
	if err != nil {
		return msgUPNotFound
	}
	now := h.now()
	var recent []bili.Video
	for _, v := range videos {
		if bili.WithinDaysAt(v.PubDate, days, now) {
			recent = append(recent, v)
		}
	}
	return report.QueryMessage(up.Name, days, recent)
}
