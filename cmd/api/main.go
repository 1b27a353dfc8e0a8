// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/studyverse/chat-platform/internal/broker"
	"github.com/studyverse/chat-platform/internal/cache"
	"github.com/studyverse/chat-platform/internal/config"
	"github.com/studyverse/chat-platform/internal/handler"
	"github.com/studyverse/chat-platform/internal/identity"
	"github.com/studyverse/chat-platform/internal/middleware"
	"github.com/studyverse/chat-platform/internal/notify"
	"github.com/studyverse/chat-platform/internal/realtime"
	"github.com/studyverse/chat-platform/internal/service"
	"github.com/studyverse/chat-platform/internal/store"
	"github.com/studyverse/chat-platform/pkg/logger"
	"github.com/studyverse/chat-platform/pkg/tracing"
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

	log.Info("starting API server")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "chat-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Postgres
	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)
	if err := pg.EnsureSchema(ctx); err != nil {
		log.Error("failed to ensure schema", zap.Error(err))
		os.Exit(1)
	}

	// User-lookup cache
	var users store.UserStore = pg
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, user cache disabled", zap.Error(err))
		} else {
			users = store.NewCachedUsers(pg, rc)
		}
	}

	// Notification queue
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.RedisURL != "" {
		qn, err := notify.NewQueueNotifier(cfg.RedisURL, log)
		if err != nil {
			log.Warn("notification queue unavailable", zap.Error(err))
		} else {
			defer qn.Close()
			notifier = qn
		}
	}

	// Services
	conversationSvc := service.NewConversationService(pg, users, log)
	messageSvc := service.NewMessageService(pg, pg, users, notifier, log)

	// Live delivery
	hub := realtime.NewHub()

	var bridge *realtime.Bridge
	var brokerClient *broker.Client
	if cfg.NATSURL != "" {
		brokerClient, err = broker.Connect(broker.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer brokerClient.Close()

		bridge, err = realtime.NewBridge(brokerClient.Conn(), hub, log)
		if err != nil {
			log.Error("failed to subscribe room bridge", zap.Error(err))
			os.Exit(1)
		}
		defer bridge.Close()
	}

	resolver := identity.NewJWTResolver(cfg.JWTSecret, users)

	// Handlers
	healthHandler := handler.NewHealthHandler(pool, brokerClient)
	conversationHandler := handler.NewConversationHandler(conversationSvc, log)
	messageHandler := handler.NewMessageHandler(messageSvc, conversationSvc, log)
	wsHandler := handler.NewWSHandler(
		resolver, hub, bridge, conversationSvc, messageSvc,
		cfg.WSAllowedOrigin, cfg.WSPingInterval, cfg.WSPongTimeout, log,
	)

	// Router
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.WSAllowedOrigin))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/ws", wsHandler.Serve)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(resolver))
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/chats", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Delete("/", conversationHandler.Delete)

				r.Get("/messages", messageHandler.List)
				r.Post("/messages", messageHandler.Send)
				r.Put("/messages/read", messageHandler.MarkRead)
			})
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
