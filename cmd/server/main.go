package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"gridmud-server/internal/api"
	authapp "gridmud-server/internal/app/auth"
	charapp "gridmud-server/internal/app/character"
	eventsapp "gridmud-server/internal/app/events"
	invapp "gridmud-server/internal/app/inventory"
	"gridmud-server/internal/app/presence"
	"gridmud-server/internal/app/relay"
	"gridmud-server/internal/platform/cache"
	"gridmud-server/internal/platform/config"
	"gridmud-server/internal/platform/db"
	"gridmud-server/internal/platform/migrate"
	"gridmud-server/internal/platform/mq"
	"gridmud-server/internal/platform/observability"
	"gridmud-server/internal/store"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := observability.NewLogger(cfg.Env)

	pg, err := db.Connect(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection failed")
	}
	defer pg.Close()

	if err := migrate.Up(ctx, pg, cfg.MigrationDir); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	var redisClient *redis.Client
	redisClient, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable; continuing without cache")
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	bus, err := mq.NewBus(cfg.NATSURL)
	if err != nil {
		logger.Warn().Err(err).Msg("nats unavailable; live queries limited to local changes")
		bus = mq.NewNoopBus()
	}
	defer bus.Close()

	st := store.New(pg, redisClient, bus, logger, cfg.RoomCacheTTL)
	hub := relay.NewHub(logger, cfg.RelayBuffer)
	eventLog := eventsapp.NewLog(st, logger)
	invSvc := invapp.NewService(st, eventLog, hub, logger)
	authSvc := authapp.NewService(pg, cfg.JWTSecret, cfg.JWTTTL)
	charSvc := charapp.NewService(logger, st, redisClient, cfg.RoomCacheTTL, cfg.StartLocation)

	sweeper := presence.NewSweeper(logger, st, cfg.SweepInterval, cfg.SweepThreshold)
	sweeper.Start()
	defer sweeper.Stop()

	handler := api.NewHandler(logger, authSvc, charSvc, st, hub, invSvc, eventLog, cfg.CorsOrigin, cfg.MaxRequestBody)
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      handler.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
