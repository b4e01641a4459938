package watch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/report"
	"github.com/wanzibot/wanzi/internal/state"
)

const (
	keywordMaxPages = 3
	keywordPageSize = 20
	keywordItemCap  = 50
)

// Digest collects one keyword's recent videos from small creators,
// ranked by play count. Follower lookups that fail count as zero and the
// item stays in.
func (e *Engine) Digest(ctx context.Context, keyword string) ([]bili.Video, error) {
	var items []bili.Video
	for page := 1; page <= keywordMaxPages && len(items) < keywordItemCap; page++ {
		results, err := e.source.SearchVideos(ctx, keyword, page, keywordPageSize)
		if err != nil {
			return nil, err
		}
		if len(results) == 0 {
			break
		}
		items = append(items, results...)
	}

	now := e.now()
	recent := items[:0]
	for _, v := range items {
		if bili.WithinDaysAt(v.PubDate, e.cfg.KeywordDays, now) {
			recent = append(recent, v)
		}
	}

	var filtered []bili.Video
	for _, v := range recent {
		if v.MID == "" || v.MID == "0" {
			continue
		}
		follower, err := e.source.RelationStat(ctx, v.MID)
		if err != nil {
			slog.Debug("digest: relation stat failed",
				slog.String("mid", v.MID), slog.Any("error", err))
			follower = 0
		}
		v.Follower = follower
		if follower < e.cfg.FollowerMax {
			filtered = append(filtered, v)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Play.Int64() > filtered[j].Play.Int64()
	})
	if len(filtered) > e.cfg.KeywordTopK {
		filtered = filtered[:e.cfg.KeywordTopK]
	}
	return filtered, nil
}

// KeywordDaily runs the digest over every stored keyword and sends one
// summary message. At most one run is credited per calendar day unless
// forced; a skipped run reports zero items and no errors. Per-keyword
// failures are collected as "<keyword>: <error>" and other keywords
// still run. The date is recorded only after a successful pass.
func (e *Engine) KeywordDaily(ctx context.Context, force, doNotify bool) (int, []string) {
	if !e.cfg.EnableKeyword {
		return 0, nil
	}

	var keywords []string
	var lastDate string
	if err := e.store.View(func(s *state.State) error {
		keywords = append(keywords, s.Keywords...)
		lastDate = s.DailyDate()
		return nil
	}); err != nil {
		return 0, []string{fmt.Sprintf("state: %v", err)}
	}

	today := e.now().Format("2006-01-02")
	if !force && lastDate == today {
		slog.Debug("digest: already ran today", slog.String("date", today))
		return 0, nil
	}
	if len(keywords) == 0 {
		return 0, nil
	}

	var errs []string
	results := make([]report.KeywordResult, 0, len(keywords))
	totalItems := 0
	for _, kw := range keywords {
		videos, err := e.Digest(ctx, kw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", kw, err))
			continue
		}
		results = append(results, report.KeywordResult{Keyword: kw, Items: videos})
		totalItems += len(videos)
	}

	if doNotify {
		if err := e.notifier.SendText(ctx, report.DailySummaryMessage(results, e.now())); err != nil {
			// leave the date unset so the next run retries
			errs = append(errs, fmt.Sprintf("notify: %v", err))
			return totalItems, errs
		}
	}

	if err := e.store.WithState(func(s *state.State) error {
		s.SetDailyDate(today)
		return nil
	}); err != nil {
		errs = append(errs, fmt.Sprintf("state: %v", err))
	}
	return totalItems, errs
}
