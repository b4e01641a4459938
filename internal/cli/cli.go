// Package cli defines the wanzi command tree: follow-list and keyword
// management, the run-once tasks, the Feishu callback server and the
// Telegram command loop.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wanzibot/wanzi/internal/bili"
	"github.com/wanzibot/wanzi/internal/command"
	"github.com/wanzibot/wanzi/internal/config"
	"github.com/wanzibot/wanzi/internal/httpx"
	"github.com/wanzibot/wanzi/internal/notify"
	"github.com/wanzibot/wanzi/internal/server"
	"github.com/wanzibot/wanzi/internal/state"
	"github.com/wanzibot/wanzi/internal/tgbot"
	"github.com/wanzibot/wanzi/internal/watch"
)

// deps bundles the lazily-built collaborators shared by subcommands.
type deps struct {
	cfg    config.Config
	client *bili.Client
	store  *state.Store
}

func (d *deps) engine() *watch.Engine {
	h := httpx.New(httpx.Config{
		HTTPClient: d.cfg.HTTPClient,
		UserAgent:  d.cfg.UserAgent,
		Retries:    d.cfg.RequestRetries,
		Sleep:      d.cfg.RequestSleep,
		Backoff:    d.cfg.RequestBackoff,
	})
	return watch.New(d.client, d.store, notify.Select(d.cfg, h), d.cfg)
}

// Root builds the command tree.
func Root(cfg config.Config, version string) *cobra.Command {
	d := &deps{cfg: cfg, client: bili.New(cfg), store: state.NewStore(cfg.StatePath)}

	root := &cobra.Command{
		Use:           "wanzi",
		Short:         "bilibili watch & digest notification bot",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(upCmd(d), kwCmd(d), runCmd(d), serveCmd(d), tgbotCmd(d))
	return root
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

func upCmd(d *deps) *cobra.Command {
	up := &cobra.Command{Use: "up", Short: "Manage the followed-UP list"}

	add := &cobra.Command{
		Use:   "add <mid|name|space-url>",
		Short: "Follow a creator by mid, name or space URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u := command.ResolveUp(cmd.Context(), d.client, args[0])
			if u == nil {
				return fmt.Errorf("UP not found, provide a MID or space URL: %q", args[0])
			}
			if err := d.store.WithState(func(s *state.State) error {
				s.AddUp(u.MID, u.Name)
				return nil
			}); err != nil {
				return err
			}
			printJSON(map[string]any{"added": u})
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List followed creators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.store.View(func(s *state.State) error {
				printJSON(s.UPs)
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <mid>",
		Short: "Unfollow a creator by mid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := false
			if err := d.store.WithState(func(s *state.State) error {
				removed = s.RemoveUp(args[0])
				return nil
			}); err != nil {
				return err
			}
			printJSON(map[string]bool{"removed": removed})
			return nil
		},
	}

	up.AddCommand(add, list, remove)
	return up
}

func kwCmd(d *deps) *cobra.Command {
	kw := &cobra.Command{Use: "kw", Short: "Manage the keyword list"}

	add := &cobra.Command{
		Use:   "add <keyword>",
		Short: "Add a digest keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := d.store.WithState(func(s *state.State) error {
				s.AddKeyword(args[0])
				return nil
			}); err != nil {
				return err
			}
			printJSON(map[string]string{"added": args[0]})
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List digest keywords",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.store.View(func(s *state.State) error {
				printJSON(s.Keywords)
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <keyword>",
		Short: "Remove a digest keyword",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed := false
			if err := d.store.WithState(func(s *state.State) error {
				removed = s.RemoveKeyword(args[0])
				return nil
			}); err != nil {
				return err
			}
			printJSON(map[string]bool{"removed": removed})
			return nil
		},
	}

	kw.AddCommand(add, list, remove)
	return kw
}

func runCmd(d *deps) *cobra.Command {
	var force bool
	run := &cobra.Command{
		Use:       "run {up-watch|keyword-daily|all}",
		Short:     "Run a watch/digest task once",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up-watch", "keyword-daily", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			e := d.engine()
			ctx := cmd.Context()
			switch args[0] {
			case "up-watch":
				count, errs := e.UpWatch(ctx, true)
				printJSON(map[string]any{"new": count, "errors": errs})
			case "keyword-daily":
				count, errs := e.KeywordDaily(ctx, force, true)
				printJSON(map[string]any{"items": count, "errors": errs})
			case "all":
				counts, errs := e.RunAll(ctx)
				printJSON(map[string]any{"counts": counts, "errors": errs})
			default:
				return fmt.Errorf("unknown task %q", args[0])
			}
			return nil
		},
	}
	run.Flags().BoolVar(&force, "force", false, "run the keyword digest even if already credited today")
	return run
}

func serveCmd(d *deps) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the Feishu event callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := command.New(d.client, d.store, d.cfg.FeishuBotName)
			sender := notify.NewFeishuApp(d.cfg)
			srv := server.New(handler, sender, d.cfg.FeishuVerificationToken)

			httpSrv := &http.Server{Addr: addr, Handler: srv.Routes()}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				_ = httpSrv.Close()
			}()

			slog.Info("feishu callback server listening", slog.String("addr", addr))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	serve.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	return serve
}

func tgbotCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "tgbot",
		Short: "Run the Telegram command loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := command.New(d.client, d.store, d.cfg.TGBotName)
			client := notify.NewTelegramClient(d.cfg)
			poller := tgbot.New(client, handler, d.cfg.TGPollInterval)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			slog.Info("telegram poller running")
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}
