// Package raffleledger assembles and runs the ledger HTTP service.
package raffleledger

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"raffleledger/internal/adapters/httpapi"
	"raffleledger/internal/blob"
	"raffleledger/internal/config"
	"raffleledger/internal/core"
	"raffleledger/internal/platform/otel"
)

const serviceName = "raffleledger"

// App is a fully wired ledger process.
type App struct {
	cfg      config.Config
	logger   *slog.Logger
	service  *core.Service
	handler  http.Handler
	shutdown func(context.Context) error
}

// New opens the store and archive backends and builds the router.
func New(ctx context.Context, cfg config.Config, logOut io.Writer) (*App, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level}))

	store, err := core.OpenPersistentStore(ctx, cfg.Storage())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	archives, err := blob.Open(ctx, cfg.Archive())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open archive store: %w", err)
	}

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithAuditRecorder(core.NewLogAuditRecorder(logger)),
		core.WithArchiveStore(archives),
	}
	var metricsHandler http.Handler
	switch cfg.MetricsBackend {
	case config.MetricsPrometheus:
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		recorder, err := core.NewPrometheusMetricsRecorder(reg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		opts = append(opts, core.WithMetricsRecorder(recorder))
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	case config.MetricsExpvar:
		opts = append(opts, core.WithMetricsRecorder(core.NewExpvarMetricsRecorder("")))
		metricsHandler = expvar.Handler()
	default:
		metricsHandler = http.NotFoundHandler()
	}

	provider, shutdown, err := otel.Setup(ctx, otel.Config{
		ServiceName: serviceName,
		Endpoint:    cfg.OTelEndpoint,
		Enabled:     cfg.OTelEnabled,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("setup tracing: %w", err)
	}
	switch {
	case provider != nil:
		opts = append(opts, core.WithTracer(core.NewOTelTracer(provider.Tracer(serviceName))))
	case cfg.TraceLog:
		opts = append(opts, core.WithTracer(core.NewJSONTracer(logOut)))
	}

	svc := core.NewService(store, opts...)
	logger.Info("raffle ledger configured",
		"storage", cfg.Storage().Driver,
		"archive", archives.Driver(),
		"metrics", cfg.MetricsBackend,
		"tracing", provider != nil)

	return &App{
		cfg:     cfg,
		logger:  logger,
		service: svc,
		handler: httpapi.NewRouter(svc, httpapi.Options{
			Logger:         logger,
			Metrics:        metricsHandler,
			RequestTimeout: cfg.RequestTimeout,
		}),
		shutdown: shutdown,
	}, nil
}

// Handler returns the HTTP router.
func (a *App) Handler() http.Handler { return a.handler }

// Service returns the ledger service.
func (a *App) Service() *core.Service { return a.service }

// Close flushes tracing and closes the store.
func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.shutdown(ctx), a.service.Close())
}

// Serve listens on ln until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: a.cfg.RequestTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run builds the app from cfg and serves on cfg.HTTPAddr until ctx ends.
func Run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := app.Close(closeCtx); err != nil {
			app.logger.Error("close", "error", err)
		}
	}()

	ln, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
	}
	return app.Serve(ctx, ln)
}
