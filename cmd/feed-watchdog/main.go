// Package main implements the entry point for the feed-watchdog workers.
// The fetch worker turns stream definitions into rendered message batches,
// the send worker delivers those batches to their receivers. Both can run
// in a single process or be split across processes with the -worker flag.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/yakimka/feed-watchdog/bus"
	"github.com/yakimka/feed-watchdog/config"
	"github.com/yakimka/feed-watchdog/dedup"
	"github.com/yakimka/feed-watchdog/handler"
	"github.com/yakimka/feed-watchdog/handler/fetcher"
	"github.com/yakimka/feed-watchdog/handler/modifier"
	"github.com/yakimka/feed-watchdog/handler/parser"
	"github.com/yakimka/feed-watchdog/handler/receiver"
	"github.com/yakimka/feed-watchdog/lock"
	"github.com/yakimka/feed-watchdog/metric"
	"github.com/yakimka/feed-watchdog/pipeline"
	"github.com/yakimka/feed-watchdog/redisclient"
	"github.com/yakimka/feed-watchdog/streamapi"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "feed-watchdog"
)

// Consumer group names on the two topics
const (
	fetchGroup = "fetchers"
	sendGroup  = "senders"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if cliCfg.Validate {
		fmt.Println("Configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting feed-watchdog",
		"worker", cliCfg.Worker,
		"config_path", cliCfg.ConfigPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, pubsub, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = storage.Close() }()
	defer func() { _ = pubsub.Close() }()

	metrics := metric.NewRegistry()
	if cfg.Metrics.Enabled {
		startMetricsServer(ctx, cfg.Metrics.ListenAddr, metrics, logger)
	}

	locker := lock.NewLocker(storage, lock.WithLogger(logger))

	registry, err := buildRegistry(cfg, locker)
	if err != nil {
		return err
	}

	store := dedup.NewRedisStore(storage)
	consumer := consumerID()

	var wg sync.WaitGroup

	if cliCfg.Worker == workerFetch || cliCfg.Worker == workerAll {
		worker := pipeline.NewFetchWorker(pipeline.FetchDeps{
			Subscriber: bus.NewSubscriber(pubsub, cfg.App.StreamsTopic, fetchGroup, consumer,
				bus.WithSubscriberLogger(logger)),
			Publisher: bus.NewPublisher(pubsub,
				bus.WithPublisherLogger(logger),
				bus.WithPublisherMetrics(metrics)),
			Store:    store,
			Registry: registry,
			Locker:   locker,
		}, cfg.App.MessagesTopic,
			pipeline.WithFetchLogger(logger),
			pipeline.WithFetchMetrics(metrics))

		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	if cliCfg.Worker == workerSend || cliCfg.Worker == workerAll {
		streams := streamapi.NewClient(cfg.App.APIBaseURL,
			streamapi.WithToken(cfg.App.APIToken),
			streamapi.WithLogger(logger))

		worker := pipeline.NewSendWorker(pipeline.SendDeps{
			Subscriber: bus.NewSubscriber(pubsub, cfg.App.MessagesTopic, sendGroup, consumer,
				bus.WithSubscriberLogger(logger)),
			Store:    store,
			Registry: registry,
			Streams:  streams,
		},
			pipeline.WithSendLogger(logger),
			pipeline.WithSendMetrics(metrics))

		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Run(ctx)
		}()
	}

	wg.Wait()
	logger.Info("Shutdown complete")
	return nil
}

// connectRedis opens the storage connection (dedup sets, locks) and the
// pub/sub connection (stream topics). They are often the same instance but
// the configuration keeps them separate.
func connectRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*redisclient.Client, *redisclient.Client, error) {
	storage, err := redisclient.NewClient(cfg.Redis.StorageURL, redisclient.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("storage redis: %w", err)
	}
	if err := storage.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("storage redis: %w", err)
	}

	pubsub, err := redisclient.NewClient(cfg.Redis.PubSubURL, redisclient.WithLogger(logger))
	if err != nil {
		_ = storage.Close()
		return nil, nil, fmt.Errorf("pubsub redis: %w", err)
	}
	if err := pubsub.Connect(ctx); err != nil {
		_ = storage.Close()
		return nil, nil, fmt.Errorf("pubsub redis: %w", err)
	}
	return storage, pubsub, nil
}

// buildRegistry loads per-instance handler configuration and registers
// every built-in handler
func buildRegistry(cfg config.Config, locker *lock.Locker) (*handler.Registry, error) {
	instances, err := handler.LoadInstanceConfig(cfg.App.HandlersConfPath)
	if err != nil {
		return nil, fmt.Errorf("handlers configuration: %w", err)
	}

	registry := handler.NewRegistry(instances)
	for _, register := range []func() error{
		func() error { return fetcher.Register(registry) },
		func() error { return parser.Register(registry) },
		func() error { return modifier.Register(registry) },
		func() error { return receiver.Register(registry, locker) },
	} {
		if err := register(); err != nil {
			return nil, fmt.Errorf("register handlers: %w", err)
		}
	}
	return registry, nil
}

// startMetricsServer exposes /metrics and shuts down with the run context
func startMetricsServer(ctx context.Context, addr string, metrics *metric.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// consumerID builds a unique consumer name for the Redis consumer groups
// so parallel worker processes never steal each other's deliveries
func consumerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = appName
	}
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return host + "-" + hex.EncodeToString(buf)
}
