// Command flux-resource-monitor runs the resource-membership core as a
// standalone daemon: it wires a GroupSource, an event-log Store, the
// Membership Monitor, and the JSON-over-HTTP RPC surface together, then
// serves until an interrupt or SIGTERM is received.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	coremetrics "github.com/flux-framework/flux-core/core/pkg/adapters/metrics"
	"github.com/flux-framework/flux-core/core/pkg/resilience"
	"github.com/flux-framework/flux-core/pkg/config"
	"github.com/flux-framework/flux-core/pkg/eventlog"
	"github.com/flux-framework/flux-core/pkg/eventlog/store/gormstore"
	"github.com/flux-framework/flux-core/pkg/logging"
	"github.com/flux-framework/flux-core/pkg/membership"
	"github.com/flux-framework/flux-core/pkg/metrics"
	"github.com/flux-framework/flux-core/pkg/ratelimit"
	"github.com/flux-framework/flux-core/pkg/statsjob"
	"github.com/flux-framework/flux-core/pkg/transport/httpapi"
	"github.com/flux-framework/flux-core/pkg/validation"
)

func main() {
	var (
		configName = flag.String("config-name", "flux-resource-monitor", "config file name (without extension)")
		configPath = flag.String("config-path", ".", "config file search path")
		configType = flag.String("config-type", "yaml", "config file type")
		dbPath     = flag.String("db", "flux-resource-monitor.db", "SQLite path for the durable event log")
	)
	flag.Parse()

	cfg, err := config.Load(*configName, *configPath, *configType)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting flux-resource-monitor", "size", cfg.Size, "http_addr", cfg.HTTPAddr)

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		logger.Fatal("open event log database", "error", err)
	}
	store, err := gormstore.New(db)
	if err != nil {
		logger.Fatal("init event log store", "error", err)
	}

	retryingStore := eventlog.NewRetryingStore(store, resilience.NewRetryer(resilience.DefaultRetryConfig()))

	appender := eventlog.New(retryingStore, cfg.EventLogBatchTimeout, eventlog.Ops{
		OnErr: func(entry eventlog.Entry, err error) {
			logger.Error("event log commit failed", "path", entry.Path, "name", entry.Name, "error", err)
		},
	})

	source := membership.NewMemorySource()

	mon, err := membership.New(0, membership.Config{
		Size:          cfg.Size,
		ForceUp:       cfg.ForceUp,
		RecoveryMode:  cfg.RecoveryMode,
		Hostlist:      cfg.Hostlist,
		SystemdEnable: cfg.SystemdEnable,
	}, appender, source, logger)
	if err != nil {
		logger.Fatal("init membership monitor", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		logger.Fatal("start membership monitor", "error", err)
	}
	defer mon.Stop()

	metricsAdapter := coremetrics.New(coremetrics.NewMemoryDriver())
	gauges := metrics.New(metricsAdapter)

	job, err := statsjob.New(cfg.StatsCronSchedule, mon, gauges, logger)
	if err != nil {
		logger.Fatal("init stats job", "error", err)
	}
	job.Start()
	defer job.Stop()

	limiter := ratelimit.NewInMemory(cfg.RateLimitPerMinute, time.Minute, cfg.RateLimitPerMinute/10+1)

	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTPAddr
	srv := httpapi.New(httpCfg, mon, validation.New(), limiter, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case <-sigCh:
		logger.Info("shutting down gracefully")
		cancel()
		if err := <-errCh; err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := appender.Close(shutdownCtx); err != nil {
		logger.Error("flush event log on shutdown", "error", err)
	}
}
