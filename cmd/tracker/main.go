package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"npc_respawn_tracker/internal/app"
	"npc_respawn_tracker/internal/infra/config"
	idb "npc_respawn_tracker/internal/infra/database"
	"npc_respawn_tracker/internal/infra/discord"
	"npc_respawn_tracker/internal/infra/gamedb"
	"npc_respawn_tracker/internal/infra/logger"
	"npc_respawn_tracker/internal/infra/scheduler"
	"npc_respawn_tracker/internal/infra/telegram"
	"npc_respawn_tracker/internal/logparse"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

func main() {
	fmt.Println("NPC Respawn Tracker starting...")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Could not load application configuration: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg)
	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"admin_id":    cfg.AdminTelegramID,
		"guild_id":    cfg.GuildID,
	}).Info("Configuration loaded")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Primary store
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	if err := idb.Migrate(ctx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	mainLogger.Info("Database connection established and schema applied")

	defRepo := idb.NewPostgresDefinitionRepository(db)
	killRepo := idb.NewPostgresKillRepository(db)
	clarRepo := idb.NewPostgresClarificationRepository(db)
	subRepo := idb.NewPostgresSubscriptionRepository(db)
	notifRepo := idb.NewPostgresNotificationRepository(db)

	registry, err := logparse.LoadRegistry(cfg.PatternsFile, cfg.LogTimezone)
	if err != nil {
		mainLogger.WithError(err).WithField("file", cfg.PatternsFile).Fatal("Could not load log templates")
	}

	// External game database; failing to reach it disables the feed, not the app.
	gamePool := gamedb.NewPool(cfg.GameDB, logger.Component("gamedb"))
	if err := gamePool.Init(ctx); err != nil {
		mainLogger.WithError(err).Warn("Game database unavailable at start-up; will retry lazily")
	}

	// Services
	correlator := app.NewKillCorrelator(defRepo, killRepo, clarRepo, notifRepo, logger.Component("correlator"))
	clarificationService := app.NewClarificationService(clarRepo, defRepo, correlator, cfg.AdminTelegramID, logger.Component("clarifications"))
	definitionService := app.NewDefinitionService(defRepo, killRepo, clarificationService, correlator, gamedb.NewSpawnLookup(gamePool), cfg.AdminTelegramID, logger.Component("definitions"))
	subscriptionService := app.NewSubscriptionService(subRepo, defRepo, logger.Component("subscriptions"))
	ingestService := app.NewIngestService(registry, correlator, logger.Component("ingest"))
	feed := app.NewGameFeed(correlator, cfg.GameDB.GuildID, cfg.GameDB.PollLookback, logger.Component("game_feed"))

	// Telegram bot (optional)
	var bot *telebot.Bot
	var sinks []app.NamedNotifier
	if cfg.TelegramToken != "" {
		botLogger := logger.Component("telegram")
		bot, err = telebot.NewBot(telebot.Settings{
			Token:  cfg.TelegramToken,
			Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
			OnError: func(err error, c telebot.Context) {
				entry := botLogger.WithError(err)
				if c != nil && c.Sender() != nil && c.Chat() != nil {
					entry = entry.WithFields(logrus.Fields{"sender_id": c.Sender().ID, "chat_id": c.Chat().ID, "text": c.Text()})
				}
				entry.Error("Telegram handler error")
			},
		})
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not create Telegram bot")
		}
		sinks = append(sinks, app.NamedNotifier{
			Name:     "telegram",
			Notifier: telegram.NewNotifier(telegram.NewTelebotAdapter(bot), botLogger),
		})
	} else {
		mainLogger.Warn("TELEGRAM_TOKEN is not set; Telegram bot disabled")
	}
	if cfg.DiscordWebhookURL != "" {
		webhook, err := discord.NewWebhookNotifier(cfg.DiscordWebhookURL, logger.Component("discord"))
		if err != nil {
			mainLogger.WithError(err).Fatal("Invalid DISCORD_WEBHOOK_URL")
		}
		sinks = append(sinks, app.NamedNotifier{Name: "discord", Notifier: webhook})
	}
	notifier := app.NewFanOutNotifier(logger.Component("notifier"), sinks...)
	notificationService := app.NewNotificationService(defRepo, killRepo, subRepo, notifRepo, notifier, logger.Component("notifications"))

	// Schedulers
	notifScheduler := scheduler.NewNotificationScheduler(notificationService, logger.Component("notification_scheduler"), cfg.NotifyCronSpec)
	if err := notifScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start notification scheduler")
	}
	feedPoller := scheduler.NewPoller(gamePool, scheduler.PollerConfig[app.FeedReport]{
		Name:       "game_kill_feed",
		Interval:   cfg.GameDB.PollInterval,
		Task:       feed.Poll,
		OnResult:   feed.LogReport,
		RunOnStart: true,
	}, logger.Component("game_feed_poller"))
	if err := feedPoller.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start game feed poller")
	}

	stoppers := []app.Stopper{notifScheduler, feedPoller}
	if bot != nil {
		handlerLogger := logger.Component("handlers")
		telegram.RegisterBotCommands(ctx, bot, telegram.UserServices{
			Subscriptions: subscriptionService,
			Notifications: notificationService,
		}, cfg.AdminTelegramID, cfg.GuildID, handlerLogger)
		telegram.RegisterAdminHandlers(ctx, bot, telegram.AdminServices{
			Definitions:    definitionService,
			Clarifications: clarificationService,
			Ingest:         ingestService,
		}, cfg.AdminTelegramID, cfg.GuildID, handlerLogger)
		telegram.RegisterClarificationHandlers(ctx, bot, clarificationService, definitionService, cfg.AdminTelegramID, cfg.GuildID, handlerLogger)
		mainLogger.Info("Telegram handlers registered")

		go bot.Start()
		// The bot stops first so no handler writes during the remaining shutdown.
		stoppers = append([]app.Stopper{bot}, stoppers...)
	}

	mainLogger.WithField("sinks", notifier.Len()).Info("Application setup complete")
	<-ctx.Done()

	if err := app.Shutdown(mainLogger, stoppers, gamePool, db); err != nil {
		mainLogger.WithError(err).Error("Shutdown finished with errors")
		os.Exit(1)
	}
	mainLogger.Info("Application shut down gracefully")
}
