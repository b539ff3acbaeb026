package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"user-auth/internal/app"
	"user-auth/internal/config"
	apihttp "user-auth/internal/http"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	store, closeStore, err := app.OpenAccountStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("account store", zap.Error(err))
	}
	defer closeStore()

	emailSender := app.NewEmailSender(cfg, logger)
	accountSvc, err := app.NewAccountService(cfg, logger, store, emailSender)
	if err != nil {
		logger.Fatal("account service", zap.Error(err))
	}

	accountHandler := apihttp.NewAccountHandler(logger, accountSvc)
	router := apihttp.NewRouter(logger, accountHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("port", cfg.HTTPPort),
			zap.String("store", cfg.StoreDriver),
			zap.String("email", cfg.EmailDriver),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
}
