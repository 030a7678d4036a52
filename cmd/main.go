package main

import (
	"context"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"ecomap-navigation/internal/api"
	"ecomap-navigation/internal/cache"
	"ecomap-navigation/internal/config"
	"ecomap-navigation/internal/gis/geocoding"
	"ecomap-navigation/internal/gis/routing"
	"ecomap-navigation/internal/offline"
	"ecomap-navigation/internal/search"
	"ecomap-navigation/internal/subscriber"
	"ecomap-navigation/internal/ws"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = godotenv.Load()

	conf, err := config.New()
	if err != nil {
		return err
	}

	var loggerOpts slog.HandlerOptions
	if conf.Env == config.EnvDev {
		loggerOpts = slog.HandlerOptions{Level: slog.LevelDebug}
	}

	jsonHandler := slog.NewJSONHandler(os.Stdout, &loggerOpts)
	logger := slog.New(jsonHandler)

	redisClient := redis.NewClient(&redis.Options{Addr: net.JoinHostPort(conf.RedisHost, conf.RedisPort)})

	store := offline.NewStore(offline.NewRedisKV(redisClient), logger)
	if err := store.Load(ctx); err != nil {
		return err
	}

	orchestrator := cache.New(
		cache.NewRedisStore(redisClient, 0),
		cache.NewHTTPFetcher(7*time.Second),
		logger,
		cache.Options{
			Version:      conf.CacheVersion,
			TileFallback: cache.FallbackMode(conf.TileFallback),
		},
	)
	if err := orchestrator.Activate(ctx); err != nil {
		return err
	}
	if conf.AppBaseURL != "" {
		if err := orchestrator.Install(ctx, conf.AppBaseURL); err != nil {
			logger.Warn("failed to install app-shell entries, offline fallbacks degraded", "error", err)
		}
	}

	searcher := search.NewSearcher(geocoding.NewClient(conf.GeocodingBaseURL), store, logger)
	routingClient := routing.NewClient(conf.RoutingBaseURL)

	wsManager := ws.NewManager(ctx, logger, searcher)
	go wsManager.Start()

	sub := subscriber.NewSubscriber(logger, redisClient, orchestrator, wsManager, conf.RedisCacheControlChannel)
	go func() {
		if err := sub.Start(ctx); err != nil {
			logger.Error("subscriber stopped with error", "error", err)
		}
	}()

	server := api.NewServer(conf, wsManager, searcher, routingClient, store, orchestrator, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	return nil
}
