// Package main is the entry point for the notification worker.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/config"
	"github.com/studyverse/chat-platform/internal/notify"
	"github.com/studyverse/chat-platform/pkg/logger"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if cfg.RedisURL == "" {
		log.Error("REDIS_URL is required for the notification worker")
		os.Exit(1)
	}

	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		log.Error("invalid redis URL", zap.Error(err))
		os.Exit(1)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 10,
	})

	mailer := &notify.SMTPMailer{
		Host: cfg.SMTPHost,
		Port: cfg.SMTPPort,
		User: cfg.SMTPUser,
		Pass: cfg.SMTPPass,
		From: cfg.SMTPFrom,
	}

	mux := asynq.NewServeMux()
	notify.RegisterHandlers(mux, mailer, log)

	log.Info("starting notification worker")
	if err := srv.Start(mux); err != nil {
		log.Error("failed to start worker", zap.Error(err))
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker")
	srv.Shutdown()
	log.Info("worker stopped")
}
