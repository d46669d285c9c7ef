// Package bot wires the long-running parts of the bridge together and manages
// their lifecycle: the Telegram poller, the webhook HTTP server, the webhook
// drain worker and the maintenance scheduler.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/pyrusbridge/tgbridge/internal/config"
	"github.com/pyrusbridge/tgbridge/internal/database"
	"github.com/pyrusbridge/tgbridge/internal/logger"
	"github.com/pyrusbridge/tgbridge/internal/webhook"
)

const shutdownTimeout = 10 * time.Second

// Poller receives Telegram updates until ctx is cancelled. *bot.Bot satisfies it.
type Poller interface {
	Start(ctx context.Context)
}

// Closer is called once every component has stopped.
type Closer interface {
	Close()
}

// Components are the parts Bot runs.
type Components struct {
	Poller    Poller
	Queue     *webhook.Queue
	Processor webhook.EventProcessor
	Webhook   *webhook.Handler
	Scheduler *Scheduler
	Store     database.Store
	// Router is closed after the poller stops so buffered media groups are flushed.
	Router Closer
}

// Bot owns the lifecycle of the bridge components.
type Bot struct {
	logger *slog.Logger
	cfg    *config.Config
	c      Components
	server *echo.Echo
}

// NewBot creates the bot and mounts the webhook endpoint on a new echo server.
func NewBot(logger *slog.Logger, cfg *config.Config, c Components) *Bot {
	b := &Bot{
		logger: logger.With("component", "bot_orchestrator"),
		cfg:    cfg,
		c:      c,
	}
	b.server = b.newServer(logger)
	return b
}

func (b *Bot) newServer(log *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(logger.EchoMiddleware(log.With("component", "http")))

	b.c.Webhook.Register(e, b.cfg.Webhook.Path)
	e.GET("/healthz", b.health)
	return e
}

// Handler exposes the HTTP router.
func (b *Bot) Handler() http.Handler {
	return b.server
}

func (b *Bot) health(c echo.Context) error {
	if b.c.Store != nil {
		if err := b.c.Store.Ping(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "state store unavailable").SetInternal(err)
		}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"queue_length":   b.c.Queue.Len(),
		"queue_capacity": b.c.Queue.Cap(),
	})
}

// Run starts every component and blocks until ctx is cancelled or one of them fails.
// Shutdown stops the HTTP server first, then waits for the drain worker and scheduler.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Starting bot orchestrator...")

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.logger.Info("Starting Telegram bot listener...")
		b.c.Poller.Start(gCtx)
		b.logger.Info("Telegram bot listener stopped.")

		if gCtx.Err() == nil {
			b.logger.Warn("Telegram bot listener stopped unexpectedly without context cancellation.")
			return fmt.Errorf("telegram listener stopped unexpectedly")
		}
		return nil
	})

	g.Go(func() error {
		b.logger.Info("Starting webhook server", "addr", b.cfg.Webhook.Addr, "path", b.cfg.Webhook.Path)
		if err := b.server.Start(b.cfg.Webhook.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("webhook server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			b.logger.Error("Error shutting down webhook server", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		return b.c.Queue.Run(gCtx, b.c.Processor)
	})

	g.Go(func() error {
		if err := b.c.Scheduler.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}

		<-gCtx.Done()
		b.logger.Info("Shutdown signal received, stopping scheduler...")
		if err := b.c.Scheduler.Stop(); err != nil {
			b.logger.Error("Error stopping scheduler", "error", err)
		}
		return nil
	})

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()

	if b.c.Router != nil {
		b.c.Router.Close()
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully.")
	return nil
}
