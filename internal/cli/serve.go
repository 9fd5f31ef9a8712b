package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	portal "github.com/dppd-rp/portal"
	otelexport "github.com/dppd-rp/portal/metrics/export/otel"
	promexport "github.com/dppd-rp/portal/metrics/export/prometheus"
	"github.com/dppd-rp/portal/server"
)

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API until interrupted.

Missing role configuration defaults are seeded on startup. On SIGINT or
SIGTERM the server stops accepting connections and drains in-flight
requests for up to http.shutdown_timeout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.Log, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.close()
			return a.run(cmd.Context())
		},
	}
}

// app is a running portal process: engine, exporters and HTTP server.
type app struct {
	cfg      portal.Config
	logger   *slog.Logger
	rdb      *redis.Client
	engine   *portal.Engine
	otel     *otelexport.Exporter
	provider *sdkmetric.MeterProvider
	httpSrv  *http.Server
}

func newApp(ctx context.Context, cfg portal.Config, logger *slog.Logger) (*app, error) {
	rdb, err := openRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	engine, err := buildEngine(cfg, rdb, logger)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, rdb: rdb, engine: engine}

	if seeded, err := engine.SeedRoleConfig(ctx); err != nil {
		logger.Warn("role config seeding failed", "error", err)
	} else if seeded {
		logger.Info("role config defaults seeded")
	}

	var opts []server.Option
	opts = append(opts, server.WithLogger(logger))
	if cfg.Metrics.Prometheus {
		reg := promexport.NewRegistry(promexport.NewCollector(engine))
		opts = append(opts, server.WithMetricsHandler(promexport.Handler(reg)))
	}
	if cfg.Metrics.OTelLogInterval > 0 {
		a.provider = otelexport.NewMeterProvider(otelexport.NewLogExporter(logger), cfg.Metrics.OTelLogInterval)
		a.otel, err = otelexport.NewExporter(a.provider.Meter("github.com/dppd-rp/portal"), engine)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("otel exporter: %w", err)
		}
	}
	a.httpSrv = server.New(engine, cfg.HTTP, opts...).HTTPServer()
	return a, nil
}

func (a *app) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "addr", a.httpSrv.Addr, "environment", a.cfg.Environment)
		errCh <- a.httpSrv.ListenAndServe()
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
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.otel != nil {
		_ = a.otel.Close()
	}
	if a.provider != nil {
		_ = a.provider.Shutdown(context.Background())
	}
	a.engine.Close()
	_ = a.rdb.Close()
}
