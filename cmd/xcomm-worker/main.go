// Command xcomm-worker serves the communication message API over HTTP and
// notifies hub listeners of lifecycle events.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/trickstertwo/xcomm"
	"github.com/trickstertwo/xcomm/adapter/kafkasink"
	"github.com/trickstertwo/xcomm/adapter/memory"
	"github.com/trickstertwo/xcomm/adapter/postgres"
	"github.com/trickstertwo/xcomm/adapter/promobserver"
	"github.com/trickstertwo/xcomm/adapter/redisstore"
	"github.com/trickstertwo/xcomm/adapter/rueidisstream"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xlog/adapter/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	zcfg := zerolog.Config{
		Console:           cfg.LogConsole,
		ConsoleTimeFormat: time.RFC3339Nano,
		Caller:            true,
		CallerSkip:        5,
	}
	if cfg.LogDebug {
		zcfg.MinLevel = xlog.LevelDebug
	}
	logger := zerolog.Use(zcfg).With(xlog.Str("app", "xcomm-worker"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *Config, logger *xlog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	b := xcomm.NewBuilder().
		WithLogger(logger).
		WithObserver(promobserver.New(reg)).
		WithMiddleware(xcomm.TimeoutMiddleware(cfg.AttemptTimeout), xcomm.LoggingMiddleware(logger)).
		WithRetryConfig(xcomm.RetryConfig{
			MaxRetries:      cfg.MaxRetries,
			InitialDelay:    cfg.InitialDelay,
			DelayMultiplier: cfg.DelayMultiplier,
		}).
		WithDispatchPool(cfg.DispatchWorkers, cfg.DispatchBuffer).
		WithDispatchTimeout(cfg.CallbackTimeout)

	switch cfg.Store {
	case memory.StoreName:
		b.WithStore(memory.StoreName, map[string]any{"callback_timeout": cfg.CallbackTimeout})
	case redisstore.StoreName:
		b.WithStore(redisstore.StoreName, map[string]any{
			"addr":             cfg.RedisAddr,
			"password":         cfg.RedisPassword,
			"db":               cfg.RedisDB,
			"callback_timeout": cfg.CallbackTimeout,
		})
	case postgres.StoreName:
		b.WithStore(postgres.StoreName, map[string]any{
			"dsn":              cfg.PostgresDSN,
			"callback_timeout": cfg.CallbackTimeout,
		})
	default:
		return fmt.Errorf("unknown store %q", cfg.Store)
	}

	var closers []func()
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	if cfg.AuditStream != "" {
		sink, err := rueidisstream.Dial(rueidisstream.Config{Addr: []string{cfg.RedisAddr}, Stream: cfg.AuditStream})
		if err != nil {
			return err
		}
		closers = append(closers, sink.Close)
		b.WithEventSink(sink)
	}
	if len(cfg.KafkaBrokers) > 0 {
		sink, err := kafkasink.New(kafkasink.Config{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = sink.Close() })
		b.WithEventSink(sink)
	}

	svc, err := b.Build()
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}
	xcomm.SetDefault(svc)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(&server{svc: svc, tr: newTransport(cfg, logger), logger: logger}, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("xcomm-worker listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(sctx), svc.Close(sctx))
	})
	return g.Wait()
}
