package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"clothshop/internal/auth"
	"clothshop/internal/config"
	"clothshop/internal/db"
	"clothshop/internal/handlers"
	"clothshop/internal/media"
	"clothshop/internal/notify"
	"clothshop/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	if err := cfg.ValidateBot(); err != nil {
		slog.Error("Bot configuration is incomplete", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(cfg)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if _, err := database.Migrate(ctx); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		slog.Error("Failed to create bot", "error", err)
		os.Exit(1)
	}
	bot.Debug = false
	slog.Info("Authorized", "username", bot.Self.UserName)

	files := media.NewStore(cfg.StaticPath)
	if _, err := files.EnsurePlaceholder(); err != nil {
		slog.Warn("Failed to create placeholder image", "error", err)
	}

	policy := auth.NewPolicy(cfg.AdminIDs, cfg.NotificationsChannelID)
	notifier := notify.New(bot, cfg.OrdersChannelID, cfg.NotificationsChannelID, policy.Moderators())
	svc := handlers.Services{
		Catalog:    service.NewCatalogService(database, files),
		Carts:      service.NewCartService(database),
		Orders:     service.NewOrderService(database, policy, notifier),
		Currency:   service.NewCurrencyService(database, cfg.FallbackCurrency, cfg.FallbackRate),
		Moderation: service.NewModerationService(database, policy, notifier),
	}
	handler, err := handlers.NewHandler(bot, svc, policy, auth.NewTokens(cfg.JWTSecret), files, cfg.WebBaseURL)
	if err != nil {
		slog.Error("Failed to create handler", "error", err)
		os.Exit(1)
	}

	if err := notifier.BotStarted(ctx); err != nil {
		slog.Warn("Startup notification failed", "error", err)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	slog.Info("Bot started")
	handler.HandleUpdates(ctx, updates)
	bot.StopReceivingUpdates()
	slog.Info("Bot stopped")
}
