package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"pawfund/internal/config"
	"pawfund/internal/donation"
	"pawfund/internal/gateway"
	"pawfund/internal/handlers"
	"pawfund/internal/notify"
	"pawfund/internal/store"
	ws "pawfund/internal/websocket"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		slog.Error("cannot load config", "error", err.Error())
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting pet donation service")

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.DSN)
	if err != nil {
		logger.Error("cannot connect to database", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, db); err != nil {
			logger.Error("cannot migrate database", "error", err.Error())
			os.Exit(1)
		}
	}

	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Without Redis the hub is fed directly; with it every replica publishes
	// to Redis and relays what it hears back into its own hub.
	var notifier donation.Notifier = hub
	if cfg.RedisURL != "" {
		client, err := notify.Connect(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("cannot connect to redis", "error", err.Error())
			os.Exit(1)
		}
		defer client.Close()

		publisher := notify.NewRedisPublisher(client, cfg.RedisChannel, logger)
		go publisher.Run(ctx)
		go func() {
			if err := notify.Relay(ctx, client, cfg.RedisChannel, hub, logger); err != nil {
				logger.Error("donation event relay stopped", "error", err.Error())
			}
		}()
		notifier = publisher
	}

	svc := donation.NewService(donation.Dependencies{
		Campaigns: store.NewCampaignStore(db),
		Ledger:    store.NewLedger(db),
		Faults:    store.NewFaultLog(db),
		Gateway:   gateway.NewMidtrans(cfg.MidtransServerKey, gateway.Environment(cfg.MidtransEnv), cfg.GatewayTimeout),
		Notifier:  notifier,
		Logger:    logger,
	})

	r := gin.Default()
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	handlers.Register(r, svc, hub, cfg.JWTSecret, cfg.CORSOrigins, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen error", "error", err.Error())
			os.Exit(1)
		}
	}()
	logger.Info("server running", "addr", cfg.HTTPAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err.Error())
	}
	cancel()

	logger.Info("server exited gracefully")
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
}

func corsConfig(origins []string) cors.Config {
	c := cors.DefaultConfig()
	c.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	c.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	if len(origins) == 0 || (len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	return c
}
