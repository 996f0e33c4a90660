package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/chatmirror/chatmirror/internal/backfill"
	"github.com/chatmirror/chatmirror/internal/chatlog"
	"github.com/chatmirror/chatmirror/internal/config"
	"github.com/chatmirror/chatmirror/internal/handlers"
	"github.com/chatmirror/chatmirror/internal/ingest"
	"github.com/chatmirror/chatmirror/internal/logger"
	"github.com/chatmirror/chatmirror/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			chatlog.NewStore,
			provideIngestService,
			provideBackfillService,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideConversationsHandler),
			provideServerHandler(provideBackfillHandler),
			provideServer,
		),
		fx.Invoke(
			startBackfillCron,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideIngestService(log *slog.Logger, store *chatlog.Store) *ingest.Service {
	return ingest.NewService(log, store)
}

func provideBackfillService(log *slog.Logger, cfg config.Config, store *chatlog.Store, ingestService *ingest.Service) *backfill.Service {
	return backfill.NewService(log, cfg.Upstream, store, ingestService)
}

func provideWebhookHandler(log *slog.Logger, ingestService *ingest.Service) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, ingestService)
}

func provideConversationsHandler(log *slog.Logger, store *chatlog.Store) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(log, store)
}

func provideBackfillHandler(log *slog.Logger, service *backfill.Service) *handlers.BackfillHandler {
	return handlers.NewBackfillHandler(log, service)
}

var provideServer = fx.Annotate(
	func(cfg config.Config, log *slog.Logger, handlerList []server.Handler) *server.Server {
		return server.NewServer(cfg.Server.Addr, log, handlerList)
	},
	fx.ParamTags(``, ``, `group:"server_handlers"`),
)

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}

// startBackfillCron schedules periodic historical imports when
// upstream.backfill_cron is configured.
func startBackfillCron(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, service *backfill.Service) error {
	expr := cfg.Upstream.BackfillCron
	if expr == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(expr, func() {
		report, err := service.Run(context.Background())
		if err != nil {
			log.Error("scheduled backfill failed", slog.Any("error", err))
			return
		}
		log.Info("scheduled backfill finished",
			slog.Int("conversations", report.Conversations),
			slog.Int("messages", report.Messages),
			slog.Int("failed", len(report.Failed)))
	})
	if err != nil {
		return fmt.Errorf("invalid upstream.backfill_cron %q: %w", expr, err)
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { c.Start(); return nil },
		OnStop: func(ctx context.Context) error {
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return nil
}
