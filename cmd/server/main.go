package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-chat/auth"
	"market-chat/gateway"
	grpcserver "market-chat/infrastructure/grpc/server"
	httpserver "market-chat/infrastructure/http/server"
	"market-chat/internal"
	"market-chat/observability"
	"market-chat/projection"
	"market-chat/relay"
	"market-chat/repositories"
	"market-chat/runtime"
	"market-chat/runtime/workers"
	"market-chat/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until SIGINT/SIGTERM.
// Returning instead of exiting lets the deferred closes (badger, redis) run.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	config, err := internal.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	store, err := repositories.NewMessageRepository(db, log, config.MaxContentLength)
	if err != nil {
		return fmt.Errorf("message store failed to start: %w", err)
	}
	defer func() { _ = store.Close() }()
	users := repositories.NewUserRepository(db)

	// 3. Delivery
	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry()
	monitoring.WithBoundCount(registry.Count)
	fanout := runtime.NewFanout(log, registry, monitoring, config.SinkTimeout)
	chat := services.NewChatService(log, store, fanout, projection.NewConversations(store, users, log), users, monitoring)

	sup := workers.NewSupervisor(log).WithRestartInterval(config.RestartInterval)

	if config.RelayEnabled() {
		instanceID := config.InstanceID
		if instanceID == "" {
			instanceID = uuid.NewString()
		}
		client := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer func() { _ = client.Close() }()
		redisRelay := relay.NewRedisRelay(log, client, config.RedisChannel, instanceID, fanout, monitoring)
		chat.WithRelay(redisRelay)
		sup.Add(redisRelay)
		log.Info("Relay enabled", "addr", config.RedisAddr, "channel", config.RedisChannel, "instance", instanceID)
	}

	// 4. Transports
	tokens := auth.NewTokenManager(config.JWTSecret)
	gw := gateway.NewGateway(log, registry, chat, monitoring, config.ConnectionBufferSize)
	router := httpserver.NewRouter(log, tokens,
		httpserver.NewChatHandler(chat, monitoring),
		httpserver.NewWSHandler(log, gw, config.Origins(), config.SinkTimeout),
	)
	sup.Add(
		httpserver.NewServer(log, httpserver.Config{
			Host:           config.Host,
			Port:           config.Port,
			AllowedOrigins: config.Origins(),
		}, router),
		grpcserver.NewHealthServer(log, config.Host, config.GrpcPort, config.HealthProbeInterval, store),
		workers.NewHeartbeatWorker(log, monitoring, config.MetricInterval),
	)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Starting market-chat", "http_port", config.Port, "grpc_port", config.GrpcPort)
	sup.Run(ctx)
	log.Info("Program stopped cleanly")
	return nil
}
