package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/cobra"

	"github.com/pyrusbridge/tgbridge/internal/bot"
	"github.com/pyrusbridge/tgbridge/internal/bot/handlers"
	"github.com/pyrusbridge/tgbridge/internal/bot/tasks"
	"github.com/pyrusbridge/tgbridge/internal/config"
	"github.com/pyrusbridge/tgbridge/internal/database"
	"github.com/pyrusbridge/tgbridge/internal/logger"
	"github.com/pyrusbridge/tgbridge/internal/media"
	"github.com/pyrusbridge/tgbridge/internal/pyrus"
	"github.com/pyrusbridge/tgbridge/internal/resilience"
	"github.com/pyrusbridge/tgbridge/internal/telegram"
	"github.com/pyrusbridge/tgbridge/internal/webhook"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram poller and the Pyrus webhook server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

// serve initializes every component and blocks until ctx is cancelled.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", configPath, "error", err)
		return err
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open state store", "backend", cfg.State.Backend, "error", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing state store", "error", err)
		}
	}()

	crm := pyrus.NewClient(pyrus.Options{
		BaseURL:  cfg.Pyrus.BaseURL,
		FilesURL: cfg.Pyrus.FilesURL,
		Credentials: pyrus.Credentials{
			Login:       cfg.Pyrus.Login,
			SecurityKey: cfg.Pyrus.SecurityKey,
		},
		Timeout: cfg.Pyrus.RequestTimeout,
		Retry: pyrus.RetryPolicy{
			Attempts:     cfg.Pyrus.Retry.Attempts,
			InitialDelay: cfg.Pyrus.Retry.InitialDelay,
			MaxDelay:     cfg.Pyrus.Retry.MaxDelay,
		},
		Breaker: newBreaker(cfg.Pyrus.Breaker, log),
		Logger:  log,
	})

	// The default handler is fixed when the bot is built, before the router
	// that needs the bot's client exists.
	var defaultHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			defaultHandler(ctx, b, update)
		}),
		tgbot.WithErrorsHandler(func(err error) {
			log.Error("Telegram polling error", "error", err)
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return err
	}
	tgClient := telegram.NewClient(tg, cfg.Telegram.Token, cfg.Telegram.RequestTimeout, log)

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		CRM:       crm,
		Messenger: tgClient,
		Files:     media.NewTransfer(tgClient, crm, cfg.Files.MaxSize, log),
	}
	router := handlers.NewRouter(hDeps)
	defaultHandler = handlers.PrivateChatOnly(hDeps)(router.Handle)
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps, router)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return err
	}

	queue := webhook.NewQueue(cfg.Webhook.QueueSize, log)
	processor := webhook.NewProcessor(crm, tgClient, webhook.ProcessorConfig{
		ChatIDField:         cfg.Forms.Appeal.Fields.TgID,
		MaxFileSize:         cfg.Files.MaxSize,
		DownloadConcurrency: cfg.Webhook.DownloadConcurrency,
		OpenChatText:        cfg.Messages.ChatOpened,
		DumpPath:            cfg.Webhook.DumpPath,
	}, log)
	hook := webhook.NewHandler(queue, webhook.HandlerConfig{
		Secret:          []byte(cfg.Pyrus.SecurityKey),
		UserAgentPrefix: cfg.Webhook.UserAgentPrefix,
		MaxBodyBytes:    cfg.Webhook.MaxBodyBytes,
	}, log)

	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger: log,
		Store:  store,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return err
	}

	app := bot.NewBot(log, cfg, bot.Components{
		Poller:    tg,
		Queue:     queue,
		Processor: processor,
		Webhook:   hook,
		Scheduler: sched,
		Store:     store,
		Router:    router,
	})

	log.Info("Starting bridge...")
	runErr := app.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bridge stopped due to error", "error", runErr)
		return runErr
	}

	log.Info("Bridge stopped gracefully.")
	return nil
}

// openStore opens the configured conversation state backend.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (database.Store, error) {
	switch cfg.State.Backend {
	case "valkey":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		client, err := database.NewValkeyClient(connectCtx, database.ValkeyConfig{
			Address:   cfg.State.Valkey.Addr,
			Password:  cfg.State.Valkey.Password,
			DB:        cfg.State.Valkey.DB,
			KeyPrefix: cfg.State.Valkey.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		log.Info("Using Valkey state store", "addr", cfg.State.Valkey.Addr)
		return database.NewValkeyStore(client, cfg.State.Valkey.KeyPrefix, cfg.State.TTL, log), nil
	case "sqlite", "":
		db, err := database.NewDB(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		log.Info("Using SQLite state store", "path", cfg.Database.Path)
		return database.NewStore(db, cfg.State.TTL, log), nil
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.State.Backend)
	}
}

func newBreaker(cfg config.BreakerConfig, log *slog.Logger) *resilience.CircuitBreaker {
	if cfg.MaxFailures == 0 {
		return nil
	}
	return resilience.New(resilience.Config{
		Name:        "pyrus",
		MaxFailures: cfg.MaxFailures,
		OpenTimeout: cfg.OpenTimeout,
		IsFailure:   pyrus.IsServiceFailure,
		Logger:      log,
	})
}
