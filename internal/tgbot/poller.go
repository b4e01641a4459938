// Package tgbot runs the Telegram command loop: long-poll updates,
// answer commands in the originating chat.
package tgbot

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/wanzibot/wanzi/internal/command"
	"github.com/wanzibot/wanzi/internal/notify"
)

// errorBackoff pauses the loop after a failed poll so a broken network
// does not spin.
const errorBackoff = 2 * time.Second

// UpdateSource is the slice of the Telegram client the poller uses;
// *notify.TelegramClient satisfies it.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]notify.Update, error)
	SendText(ctx context.Context, chatID, text string) error
}

// Poller drives the polling loop.
type Poller struct {
	client   UpdateSource
	commands *command.Handler
	limiter  *rate.Limiter
}

// New builds a poller pacing polls at one per interval.
func New(client UpdateSource, commands *command.Handler, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	return &Poller{
		client:   client,
		commands: commands,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Run polls until the context is canceled. Poll failures are logged and
// the loop continues.
func (p *Poller) Run(ctx context.Context) error {
	var offset int64
	for {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		updates, err := p.client.GetUpdates(ctx, offset)
		if err != nil {
			slog.Warn("tgbot: poll failed", slog.Any("error", err))
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			chatID, text, ok := u.ChatAndText()
			if !ok {
				slog.Debug("tgbot: ignored non-text update", slog.Int64("update_id", u.UpdateID))
				continue
			}
			reply, handled := p.commands.Handle(ctx, text)
			if !handled || reply == "" {
				continue
			}
			if err := p.client.SendText(ctx, chatID, reply); err != nil {
				slog.Error("tgbot: reply failed",
					slog.String("chat_id", chatID), slog.Any("error", err))
			}
		}
	}
}
