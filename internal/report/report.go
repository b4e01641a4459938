// Package report renders the chat-facing notification texts.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/state"
)

// KeywordResult pairs a keyword with its digest items, in run order.
type KeywordResult struct {
	Keyword string
	Items   []bili.Video
}

// FmtTS renders a unix timestamp for chat, "-" when absent.
func FmtTS(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04")
}

func videoLine(v bili.Video) string {
	title := v.Title
	if title == "" {
		title = "(no title)"
	}
	return fmt.Sprintf("- %s\n  UP: %s | 播放: %s | 评论: %s | 发布: %s\n  %s",
		title, v.Author, v.Play, v.Comment, FmtTS(v.PubDate), v.URL)
}

// UpWatchMessage is the new-upload notification for one creator.
func UpWatchMessage(up state.UP, videos []bili.Video) string {
	name := up.Name
	if name == "" {
		name = up.MID
	}
	lines := []string{"UP 更新提醒: " + name}
	for _, v := range videos {
		lines = append(lines, videoLine(v))
	}
	return strings.Join(lines, "\n")
}

func digestLines(items []bili.Video) []string {
	if len(items) == 0 {
		return []string{"- 无符合条件的视频"}
	}
	lines := make([]string, 0, len(items))
	for i, v := range items {
		title := v.Title
		if title == "" {
			title = "(no title)"
		}
		lines = append(lines, fmt.Sprintf("%d. %s\n   UP: %s | 粉丝: %d | 播放: %s | 发布: %s\n   %s",
			i+1, title, v.Author, v.Follower, v.Play, FmtTS(v.PubDate), v.URL))
	}
	return lines
}

// KeywordDailyMessage is a single keyword's digest.
func KeywordDailyMessage(keyword string, items []bili.Video, now time.Time) string {
	lines := []string{fmt.Sprintf("关键词日报: %s (%s)", keyword, now.Format("2006-01-02"))}
	lines = append(lines, digestLines(items)...)
	return strings.Join(lines, "\n")
}

// DailySummaryMessage bundles all keyword digests into one message.
func DailySummaryMessage(results []KeywordResult, now time.Time) string {
	lines := []string{fmt.Sprintf("关键词日报汇总 (%s)", now.Format("2006-01-02"))}
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("\n[%s]\n", r.Keyword))
		lines = append(lines, digestLines(r.Items)...)
	}
	return strings.Join(lines, "\n")
}

// QueryMessage lists a creator's recent uploads for a chat query.
// At most 15 items are shown.
func QueryMessage(name string, days int, items []bili.Video) string {
	if len(items) == 0 {
		return fmt.Sprintf("%s 近%d天没有发布新视频。", name, days)
	}
	lines := []string{fmt.Sprintf("%s 近%d天发布：", name, days)}
	if len(items) > 15 {
		items = items[:15]
	}
	for _, v := range items {
		lines = append(lines, fmt.Sprintf("- %s | %s\n  %s", v.Title, FmtTS(v.PubDate), v.URL))
	}
	return strings.Join(lines, "\n")
}

// FollowListMessage lists the followed creators.
func FollowListMessage(ups []state.UP) string {
	if len(ups) == 0 {
		return "当前没有关注任何UP。"
	}
	lines := []string{"当前关注UP列表:"}
	for _, u := range ups {
		name := u.Name
		if name == "" {
			name = u.MID
		}
		lines = append(lines, fmt.Sprintf("- %s (MID: %s)", name, u.MID))
	}
	return strings.Join(lines, "\n")
}
