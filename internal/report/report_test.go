package report

import (
	"strings"
	"testing"
	"time"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/state"
)

var now = time.Date(2025, 6, 15, 9, 30, 0, 0, time.Local)

func TestUpWatchMessage(t *testing.T) {
	msg := UpWatchMessage(state.UP{MID: "42", Name: "小王"}, []bili.Video{
		{Title: "新视频", Author: "小王", Play: "3.5万", Comment: "12",
			PubDate: now.Unix(), URL: "https://www.bilibili.com/video/BV1"},
	})
	if !strings.HasPrefix(msg, "UP 更新提醒: 小王") {
		t.Errorf("missing header: %q", msg)
	}
	for _, want := range []string{"新视频", "播放: 3.5万", "评论: 12", "https://www.bilibili.com/video/BV1"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestUpWatchMessageFallsBackToMID(t *testing.T) {
	msg := UpWatchMessage(state.UP{MID: "42"}, nil)
	if msg != "UP 更新提醒: 42" {
		t.Errorf("got %q", msg)
	}
}

func TestDailySummaryMessage(t *testing.T) {
	msg := DailySummaryMessage([]KeywordResult{
		{Keyword: "AI绘画", Items: []bili.Video{
			{Title: "教程", Author: "小王", Follower: 900, Play: "1200", PubDate: now.Unix(), URL: "u"},
		}},
		{Keyword: "冷门", Items: nil},
	}, now)

	if !strings.HasPrefix(msg, "关键词日报汇总 (2025-06-15)") {
		t.Errorf("missing header: %q", msg)
	}
	for _, want := range []string{"[AI绘画]", "1. 教程", "粉丝: 900", "[冷门]", "- 无符合条件的视频"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestQueryMessageTruncatesTo15(t *testing.T) {
	items := make([]bili.Video, 20)
	for i := range items {
		items[i] = bili.Video{Title: "t", PubDate: now.Unix(), URL: "u"}
	}
	msg := QueryMessage("小王", 3, items)
	if got := strings.Count(msg, "\n- "); got != 15 {
		t.Errorf("expected 15 items, got %d", got)
	}
	if empty := QueryMessage("小王", 3, nil); empty != "小王 近3天没有发布新视频。" {
		t.Errorf("got %q", empty)
	}
}

func TestFmtTS(t *testing.T) {
	if got := FmtTS(0); got != "-" {
		t.Errorf("FmtTS(0) = %q", got)
	}
	if got := FmtTS(now.Unix()); got != "2025-06-15 09:30" {
		t.Errorf("FmtTS = %q", got)
	}
}
