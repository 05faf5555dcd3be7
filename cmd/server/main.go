package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"auditd/internal/admin"
	"auditd/internal/platform/config"
	"auditd/internal/platform/httpserver"
	"auditd/internal/platform/logger"
	"auditd/internal/platform/metrics"
	httptransport "auditd/internal/transport/http"
	"auditd/pkg/platform/audit"
	"auditd/pkg/platform/audit/filter"
	"auditd/pkg/platform/audit/publisher"
	"auditd/pkg/platform/middleware/auth"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (default $AUDITD_CONFIG or ./auditd.yaml)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "auditd:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	be, err := openBackends(ctx, cfg)
	if err != nil {
		return err
	}
	defer be.Close()

	f := filter.New()
	source, store, err := filterSource(ctx, cfg, be)
	if err != nil {
		return err
	}
	refresher := filter.NewRefresher(f, source,
		filter.WithInterval(cfg.Filter.RefreshInterval),
		filter.WithLogger(log),
		filter.WithReloadHook(m.ObserveFilterReload),
	)
	if err := refresher.Refresh(ctx); err != nil {
		// Nothing is audited until a load succeeds; Run keeps retrying.
		log.ErrorContext(ctx, "initial audit filter load failed", "error", err)
	}

	pub, err := publisher.New(f,
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(m.Registry)),
		publisher.WithTracer(otel.Tracer("auditd")),
		publisher.WithHandlerTimeout(cfg.Publisher.HandlerTimeout),
		publisher.WithAsyncBuffer(cfg.Publisher.AsyncBuffer),
		publisher.WithEnqueueTimeout(cfg.Publisher.EnqueueTimeout),
		publisher.WithErrorBuffer(cfg.Publisher.ErrorBuffer),
	)
	if err != nil {
		return fmt.Errorf("create audit publisher: %w", err)
	}

	sinks, err := registerSinks(ctx, cfg, pub, be, m, log)
	if err != nil {
		_ = pub.Close()
		return err
	}
	defer sinks.Close(log)

	errorsDone := drainErrors(pub.Errors())

	factory := audit.NewFactory()
	configAuditor, err := audit.NewConfigAuditor(factory, pub, f)
	if err != nil {
		return err
	}
	accessAuditor, err := audit.NewAccessAuditor(factory, pub, f)
	if err != nil {
		return err
	}

	managerOpts := []admin.Option{admin.WithLogger(log)}
	if store != nil {
		managerOpts = append(managerOpts, admin.WithStore(store))
	}
	if sinks.records != nil {
		managerOpts = append(managerOpts, admin.WithRecords(sinks.records))
	}
	manager, err := admin.NewManager(f, configAuditor, cfg.Server.Realm, managerOpts...)
	if err != nil {
		return err
	}
	adminHandler := admin.NewHandler(manager,
		auth.NewHMACValidator(cfg.Server.JWTSigningKey, "auditd"),
		admin.AccessAudit(accessAuditor, cfg.Server.Realm, log),
		log,
	)

	router := httptransport.NewRouter(httptransport.Dependencies{
		Metrics: m,
		Admin:   adminHandler,
		Checks:  be.healthChecks(f),
	})
	srv := httpserver.New(cfg.Server, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := refresher.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return httpserver.ListenAndServe(gctx, srv, cfg.Server.ShutdownTimeout, log)
	})
	runErr := g.Wait()

	// The server has stopped accepting requests; drain queued records before
	// sinks and backends are closed by the deferred calls.
	log.Info("draining audit publisher")
	if err := pub.Close(); err != nil {
		log.Error("audit publisher close failed", "error", err)
	}
	<-errorsDone

	if runErr != nil {
		return runErr
	}
	log.Info("auditd stopped")
	return nil
}

// drainErrors discards delivery failures until errs is closed. The publisher
// has already logged them; draining keeps the channel from filling.
func drainErrors(errs <-chan error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range errs {
		}
	}()
	return done
}
