// Package main is the entry point for the L2 ingestion core.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/marketfeed/l2ingest/internal/apm"
	"github.com/marketfeed/l2ingest/internal/config"
	"github.com/marketfeed/l2ingest/internal/health"
	"github.com/marketfeed/l2ingest/internal/logger"
	"github.com/marketfeed/l2ingest/internal/metrics"
	"github.com/marketfeed/l2ingest/internal/sink"
	redissink "github.com/marketfeed/l2ingest/internal/sink/redis"
	"github.com/marketfeed/l2ingest/internal/supervisor"
	"github.com/marketfeed/l2ingest/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to configuration file")
	tuiMode := flag.Bool("tui", false, "Run the live book-view TUI instead of plain logs")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("l2ingest %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !*tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, *configPath, *tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string, tuiMode bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logLevel := logger.LevelInfo
	switch cfg.App.LogLevel {
	case "debug":
		logLevel = logger.LevelDebug
	case "warn":
		logLevel = logger.LevelWarn
	case "error":
		logLevel = logger.LevelError
	}

	var log *logger.Logger
	if tuiMode {
		log = logger.New(io.Discard, logLevel, cfg.App.Name, nil)
	} else {
		log = logger.New(os.Stderr, logLevel, cfg.App.Name, nil)
		log.Info(ctx, "starting l2ingest", "version", version, "environment", cfg.App.Environment)
	}

	var traceProvider apm.TraceProvider
	if cfg.Telemetry.Enabled {
		if cfg.Telemetry.ServiceName != "" {
			os.Setenv("OTEL_SERVICE_NAME", cfg.Telemetry.ServiceName)
		}
		if cfg.Telemetry.OTLPEndpoint != "" {
			os.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.OTLPEndpoint)
		}

		var provider apm.Provider
		switch cfg.Telemetry.Exporter {
		case "zipkin":
			provider = apm.ZipkinProvider
		case "otlp":
			provider = apm.OTLPProvider
		default:
			provider = apm.ConsoleProvider
		}
		traceProvider = apm.NewTraceProvider(log, apm.WithProvider(provider, log))
		log.Info(ctx, "tracing initialized", "provider", string(provider))

		metrics.NewMetricProvider(
			metrics.WithServiceName(cfg.Telemetry.ServiceName),
			metrics.WithProviderConfig(metrics.ProviderCfg{Provider: metrics.PrometheusProvider}),
		)

		port := cfg.Telemetry.PrometheusPort
		if port == 0 {
			port = 9090
		}
		go metrics.ServePrometheusMetrics(metrics.WithPort(strconv.Itoa(port)))
		log.Info(ctx, "prometheus metrics server started", "port", port)
	}
	defer func() {
		if traceProvider != nil {
			traceProvider.Stop()
		}
	}()

	healthServer := health.NewServer(cfg.App.HealthPort, version)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.App.HealthPort)
	}
	defer healthServer.Stop(ctx)

	descriptors, descErrs := cfg.Descriptors()
	for _, e := range descErrs {
		log.Error(ctx, "market registry entry rejected", "error", e)
	}
	if len(descriptors) == 0 {
		return fmt.Errorf("no valid markets configured")
	}

	bookSink, tradeSink, closeSink, err := buildSinks(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to build sinks: %w", err)
	}
	defer closeSink()

	runnables, buildErrs := supervisor.Build(descriptors, bookSink, tradeSink, log)
	for _, e := range buildErrs {
		log.Error(ctx, "failed to build session for market", "error", e)
	}
	if len(runnables) == 0 {
		return fmt.Errorf("no sessions could be built from the configured markets")
	}

	sup := supervisor.New(runnables, log)
	healthServer.RegisterCheck("supervisor", func(context.Context) (bool, string) {
		if sup.Healthy() {
			return true, fmt.Sprintf("%d markets supervised", len(sup.Tags()))
		}
		return false, "no markets supervised"
	})

	if tuiMode {
		return runTUI(ctx, sup)
	}
	return runCLI(ctx, sup, log)
}

func runCLI(ctx context.Context, sup *supervisor.Supervisor, log logger.LoggerInterface) error {
	log.Info(ctx, "all sessions starting", "markets", sup.Tags())
	sup.StartAll(ctx)
	log.Info(ctx, "all sessions stopped")
	return nil
}

func runTUI(ctx context.Context, sup *supervisor.Supervisor) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sup.StartAll(runCtx)
		close(done)
	}()

	p := tea.NewProgram(ui.New(sup), tea.WithAltScreen())
	_, err := p.Run()
	cancel() // TUI quit (q) or parent ctx cancellation both converge here

	<-done

	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// buildSinks wires the Redis example sink when enabled, or the no-op sinks
// otherwise. Both the book and trade sink are the same Redis connection.
func buildSinks(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (sink.BookSink, sink.TradeSink, func(), error) {
	if !cfg.Redis.Enabled {
		return sink.NoopBookSink{}, sink.NoopTradeSink{}, func() {}, nil
	}

	redisCfg := redissink.Config{
		Addr:           cfg.Redis.Addr,
		Password:       cfg.Redis.Password,
		DB:             cfg.Redis.DB,
		ChannelPrefix:  cfg.Redis.ChannelPrefix,
		PublishTimeout: redissink.DefaultConfig(cfg.Redis.Addr).PublishTimeout,
	}
	rs := redissink.New(redisCfg, log)

	pingCtx, cancel := context.WithTimeout(ctx, redisCfg.PublishTimeout)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		return nil, nil, nil, fmt.Errorf("redis sink: %w", err)
	}

	log.Info(ctx, "redis sink connected", "addr", cfg.Redis.Addr)
	return rs, rs, func() { rs.Close() }, nil
}
