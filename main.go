// wanzi — bilibili watch & digest notification bot.
//
// Watches followed UPs for new uploads, posts a daily keyword digest of
// small-creator videos, and answers chat commands over Feishu or Telegram.
package main

import (
	"log/slog"
	"os"

	"github.com/wanzibot/wanzi/internal/cli"
	"github.com/wanzibot/wanzi/internal/config"
)

var version = "dev"

func main() {
	cfg := config.Load()

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := cli.Root(cfg, version).Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
