package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/csrf"
	"github.com/gorilla/sessions"

	"clothshop/internal/auth"
	"clothshop/internal/config"
	"clothshop/internal/db"
	"clothshop/internal/media"
	"clothshop/internal/notify"
	"clothshop/internal/service"
	"clothshop/internal/web"
)

func main() {
	// web hash-password <password> prints a value for ADMIN_PASSWORD_HASH
	if len(os.Args) == 3 && os.Args[1] == "hash-password" {
		hash, err := auth.HashPassword(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))
	if err := cfg.ValidateWeb(); err != nil {
		slog.Error("Web configuration is invalid", "error", err)
		os.Exit(1)
	}

	database, err := db.Open(cfg)
	if err != nil {
		slog.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	if _, err := database.Migrate(context.Background()); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	files := media.NewStore(cfg.StaticPath)
	if _, err := files.EnsurePlaceholder(); err != nil {
		slog.Warn("Failed to create placeholder image", "error", err)
	}

	policy := auth.NewPolicy(cfg.AdminIDs, cfg.NotificationsChannelID)
	var (
		orderNotifier service.OrderNotifier
		banNotifier   service.BanNotifier
	)
	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			slog.Warn("Telegram notifications disabled", "error", err)
		} else {
			n := notify.New(bot, cfg.OrdersChannelID, cfg.NotificationsChannelID, policy.Moderators())
			orderNotifier, banNotifier = n, n
		}
	}

	sessionStore := sessions.NewCookieStore(cfg.SessionKey)
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.Secure = cfg.CookieSecure
	sessionStore.Options.SameSite = http.SameSiteLaxMode
	sessionStore.Options.Path = "/"

	srv, err := web.NewServer(web.Deps{
		Catalog:      service.NewCatalogService(database, files),
		Admin:        service.NewAdminService(database, files),
		Orders:       service.NewOrderService(database, policy, orderNotifier),
		Currency:     service.NewCurrencyService(database, cfg.FallbackCurrency, cfg.FallbackRate),
		Moderation:   service.NewModerationService(database, policy, banNotifier),
		Policy:       policy,
		Tokens:       auth.NewTokens(cfg.JWTSecret),
		Sessions:     sessionStore,
		StaticPath:   cfg.StaticPath,
		PasswordHash: cfg.AdminPasswordHash,
	})
	if err != nil {
		slog.Error("Failed to load templates", "error", err)
		os.Exit(1)
	}

	gin.SetMode(gin.ReleaseMode)
	protect := csrf.Protect(
		cfg.CSRFKey,
		csrf.Secure(cfg.CookieSecure),
		csrf.Path("/"),
		csrf.TrustedOrigins([]string{"localhost:" + cfg.Port, "127.0.0.1:" + cfg.Port}),
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           protect(srv.Router()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	<-stop
	slog.Info("Shutting down server gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server exited gracefully.")
}
