package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"pulsebridge/internal/broadcast"
	"pulsebridge/internal/config"
	"pulsebridge/internal/fanout"
	"pulsebridge/internal/platform/logging"
	"pulsebridge/internal/redis"
	"pulsebridge/internal/server"
	"pulsebridge/internal/verify"
	"pulsebridge/internal/websocket"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, hub *websocket.Hub, sub *redis.Subscription, cancelDispatch context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelDispatch()
		sub.Close()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	registry := redis.NewConnectionRegistry(redisClient, cfg.ConnectionSetKey)
	broker := redis.NewBroker(redisClient, cfg.BroadcastChannel)

	scheme := verify.SelectScheme(cfg.EndpointSecret, cfg.SigningSecret, cfg.Tolerance())
	verifier := verify.NewVerifier(scheme, clock)
	if cfg.EndpointSecret == "" && cfg.SigningSecret == "" {
		slog.Warn("No signing secret configured, webhook verification is disabled")
	}

	hub := websocket.NewHub()
	engine := fanout.NewEngine(registry, hub, cfg.MaxConcurrentPushes, cfg.PushTimeout)

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	sub := broker.Subscribe(dispatchCtx)
	dispatcher := broadcast.NewDispatcher(sub.Ch, engine)
	go dispatcher.Run(dispatchCtx)

	srv := server.NewServer(cfg, verifier, broker, registry, hub, engine, redisClient)

	done := runGracefulShutdown(srv, hub, sub, cancelDispatch)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
