// Package main запускает HTTP-сервер сервиса chatearn.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/chatearn-system/internal/config"
	"github.com/mmeshcher/chatearn-system/internal/handler"
	"github.com/mmeshcher/chatearn-system/internal/middleware"
	"github.com/mmeshcher/chatearn-system/internal/repository"
	"github.com/mmeshcher/chatearn-system/internal/responder"
	"github.com/mmeshcher/chatearn-system/internal/service"
	"github.com/mmeshcher/chatearn-system/internal/telegram"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	svc := service.NewService(repo, responder.New(cfg.AppName), service.DefaultRates())
	defer svc.Close()

	authSecret := cfg.AuthSecret
	if authSecret == "" {
		authSecret = "chatearn-secret"
	}
	authMiddleware := middleware.NewAuthMiddleware(authSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, cfg.AdminAccountID)

	var webhook http.Handler
	var webhookPath string
	if cfg.TelegramToken != "" {
		sender, err := telegram.NewBotSender(cfg.TelegramToken)
		if err != nil {
			sugar.Fatalw("telegram initialization error", "error", err.Error())
		}
		webhook = telegram.NewWebhook(svc, sender, logger, cfg.AppName)
		webhookPath = telegram.WebhookPath(cfg.TelegramToken)
	}

	r := h.SetupRouter(webhook, webhookPath)

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting chatearn server", "addr", cfg.RunAddress, "telegram", cfg.TelegramToken != "")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
