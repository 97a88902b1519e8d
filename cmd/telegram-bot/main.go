package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitness-planner/internal/app"
	"fitness-planner/internal/config"
	"fitness-planner/internal/logging"
	"fitness-planner/internal/metrics"
	"fitness-planner/internal/storage"
	"fitness-planner/internal/telegram"

	log "github.com/sirupsen/logrus"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(logging.SetupParams{
		LogFileName:   cfg.LogFile,
		LogToStdout:   true,
		LogLevel:      cfg.LogLevel,
		LogFormatJSON: cfg.LogJSON,
	})

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// 2. Wire storage, plan service and orchestrators
	reg := metrics.SetupPrometheus()
	application, err := app.New(ctx, cfg, app.WithPrometheus(reg))
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.WithError(err).Error("failed to close application")
		}
	}()

	application.RefreshHistories(ctx)

	// The CLI may edit the shared profile document while the bot runs.
	if cfg.ProfileBackend == config.ProfileBackendFile {
		err := storage.Watch(ctx, cfg.ProfileFilePath, 200*time.Millisecond, func() {
			if err := application.Profiles.Reload(ctx); err != nil {
				log.WithError(err).Warn("failed to reload profile")
			}
		})
		if err != nil {
			log.WithError(err).Warn("profile changes will not be picked up until restart")
		}
	}

	// 3. Initialize Telegram Bot
	bot, err := telegram.NewBot(cfg, application,
		telegram.WithRateLimitedCounter(application.Collector.CounterRateLimited))
	if err != nil {
		log.Fatalf("Failed to initialize Telegram Bot: %v", err)
	}

	// 4. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           bot.Router(reg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("telegram bot server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}

	log.Info("Server exiting")
}
