package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/kazi/internal/config"
	"github.com/jkaninda/kazi/internal/gateway/httpapi"
	"github.com/jkaninda/kazi/internal/ratelimit"
	"github.com/jkaninda/kazi/internal/retention"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `kazi --config path` and `kazi serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts Kazi in server mode (HTTP API plus background sweepers).
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("KAZI_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.Gateway == nil {
			cfg.Gateway = &config.HTTPGatewayConfig{Enabled: true}
		}
		cfg.Gateway.ListenAddr = servePort
	}

	logger.Info("starting in server mode", slog.String("config", serveConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Retention sweeper (optional).
	if cfg.Retention != nil && cfg.Retention.Enabled {
		sweeper := retention.New(sc.Store.Conversations(), cfg.Retention, logger)
		cancelSweeper := sweeper.Start(ctx)
		defer cancelSweeper()
	}

	// Rate limiter (optional).
	var limiter *ratelimit.Limiter
	if cfg.Gateway != nil && cfg.Gateway.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.Gateway.RateLimit.BurstSize,
		})
		logger.Debug("rate limiter initialized",
			slog.Int("requests_per_minute", cfg.Gateway.RateLimit.RequestsPerMinute),
		)
	}

	gwCfg := httpapi.Config{
		ListenAddr: cfg.Gateway.Addr(),
		EnableDocs: cfg.Gateway != nil && cfg.Gateway.EnableDocs,
	}
	if cfg.Gateway != nil {
		gwCfg.APIKeys = cfg.Gateway.APIKeyUserMapping
		gwCfg.MaxRequestSize = cfg.Gateway.MaxRequestSizeBytes
	}
	if len(gwCfg.APIKeys) == 0 {
		logger.Warn("no API keys configured, all HTTP requests will be rejected " +
			"(set gateway.api_key_user_mapping or KAZI_API_KEYS)")
	}
	if sc.Obs != nil {
		if sc.Obs.Metrics != nil {
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
			gwCfg.Metrics = sc.Obs.Metrics
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				gwCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		gwCfg.Tracer = sc.Obs.TracerOrNil()
		gwCfg.HealthChecker = sc.Obs.Health
	}

	gw := httpapi.NewGateway(gwCfg, sc.AgentCore, sc.Store.Conversations(), sc.Store.Tasks(), limiter, logger)

	// Shut the server down when the context is canceled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Error("gateway shutdown", slog.String("error", err.Error()))
		}
	}()

	if err := gw.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info("shutdown complete")
	return nil
}
