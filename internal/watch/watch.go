// Package watch implements the run-once tasks: the per-creator
// new-upload diff and the daily keyword digest.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/notify"
	"github.com/wanzibot/wanzi/internal/report"
	"github.com/wanzibot/wanzi/internal/state"
)

const (
	upWatchPageSize = 10
	markerCap       = 20
)

// VideoSource is the slice of the platform client the engines consume.
// *bili.Client satisfies it; tests plug fakes.
type VideoSource interface {
	ListVideos(ctx context.Context, mid string, page, pageSize int) ([]bili.Video, error)
	SearchVideos(ctx context.Context, keyword string, page, pageSize int) ([]bili.Video, error)
	RelationStat(ctx context.Context, mid string) (int64, error)
}

// Engine runs the watch and digest passes. It holds no state between
// runs; everything durable lives in the store.
type Engine struct {
	source   VideoSource
	store    *state.Store
	notifier notify.Notifier
	cfg      config.Config

	now func() time.Time
}

// New wires an engine.
func New(source VideoSource, store *state.Store, notifier notify.Notifier, cfg config.Config) *Engine {
	return &Engine{source: source, store: store, notifier: notifier, cfg: cfg, now: time.Now}
}

// UpWatch fetches each followed creator's latest uploads, diffs them
// against the seen markers and notifies about new ones. Per-creator
// failures are collected as "<mid>: <error>" and do not stop the pass.
// Markers are written back once at the end of the pass: a crash mid-run
// loses all marker progress for the run, never follow data.
func (e *Engine) UpWatch(ctx context.Context, doNotify bool) (int, []string) {
	var ups []state.UP
	markers := map[string][]string{}
	if err := e.store.View(func(s *state.State) error {
		ups = append(ups, s.UPs...)
		for _, u := range s.UPs {
			markers[u.MID] = s.LastSeenBvids(u.MID)
		}
		return nil
	}); err != nil {
		return 0, []string{fmt.Sprintf("state: %v", err)}
	}

	totalNew := 0
	var errs []string
	updated := map[string][]string{}

	for _, up := range ups {
		videos, err := e.source.ListVideos(ctx, up.MID, 1, upWatchPageSize)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", up.MID, err))
			continue
		}

		seen := map[string]bool{}
		for _, bvid := range markers[up.MID] {
			seen[bvid] = true
		}
		var fresh []bili.Video
		for _, v := range videos {
			if !seen[v.BVID] {
				fresh = append(fresh, v)
			}
		}

		if len(fresh) > 0 {
			totalNew += len(fresh)
			slog.Info("watch: new uploads",
				slog.String("mid", up.MID), slog.Int("count", len(fresh)))
			if doNotify {
				if err := e.notifier.SendText(ctx, report.UpWatchMessage(up, fresh)); err != nil {
					// marker stays put so the next run re-notifies
					errs = append(errs, fmt.Sprintf("%s: %v", up.MID, err))
					continue
				}
			}
		}

		// Replace the marker even when nothing was new.
		latest := make([]string, 0, len(videos))
		for _, v := range videos {
			if v.BVID != "" {
				latest = append(latest, v.BVID)
			}
		}
		if len(latest) > markerCap {
			latest = latest[:markerCap]
		}
		updated[up.MID] = latest
	}

	if err := e.store.WithState(func(s *state.State) error {
		for mid, bvids := range updated {
			s.SetLastSeenBvids(mid, bvids)
		}
		return nil
	}); err != nil {
		errs = append(errs, fmt.Sprintf("state: %v", err))
	}
	return totalNew, errs
}

// RunAll runs the watch pass and, when enabled, the daily keyword digest.
// Counts and errors are aggregated; nothing aborts the run.
func (e *Engine) RunAll(ctx context.Context) (map[string]int, []string) {
	counts := map[string]int{}
	var errs []string

	c1, e1 := e.UpWatch(ctx, true)
	counts["up_watch_new"] = c1
	errs = append(errs, e1...)

	if e.cfg.EnableKeyword {
		c2, e2 := e.KeywordDaily(ctx, false, true)
		counts["keyword_items"] = c2
		errs = append(errs, e2...)
	}
	return counts, errs
}
