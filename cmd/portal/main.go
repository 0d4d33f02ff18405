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

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"

	"github.com/jvkenny/CLFleadservice/internal/adapter/arcgis"
	"github.com/jvkenny/CLFleadservice/internal/adapter/audit"
	"github.com/jvkenny/CLFleadservice/internal/adapter/geocode"
	"github.com/jvkenny/CLFleadservice/internal/adapter/httpapi"
	"github.com/jvkenny/CLFleadservice/internal/auth"
	"github.com/jvkenny/CLFleadservice/internal/config"
	"github.com/jvkenny/CLFleadservice/internal/domain"
	"github.com/jvkenny/CLFleadservice/internal/observability"
	"github.com/jvkenny/CLFleadservice/internal/portal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	session := auth.NewSession(auth.Config{
		ClientID:    cfg.OAuthClientID,
		ProviderURL: cfg.OAuthProviderURL,
		RedirectURL: cfg.OAuthRedirectURL,
		Timeout:     cfg.OAuthTimeout,
		VerifierTTL: cfg.VerifierTTL,
	}, clockwork.NewRealClock(), logger, metrics)

	// The session doubles as the token source; with no client ID configured
	// the layer is queried anonymously.
	var tokens arcgis.TokenSource = session
	if cfg.OAuthClientID == "" {
		tokens = arcgis.AnonymousTokens{}
		logger.Info("no oauth client configured, querying anonymously")
	}
	inventory := arcgis.NewClient(cfg.DatasetURL, cfg.MaxRecordCount, cfg.DatasetTimeout, tokens, metrics, logger)

	center := orb.Point{cfg.DefaultCenterLon, cfg.DefaultCenterLat}
	var resolver domain.Resolver = geocode.NewClient(cfg.GeocodeURL, center, cfg.GeocodeTimeout, metrics, logger)
	resolver = geocode.NewCachedResolver(resolver, cfg.GeocodeCacheSize, metrics)

	var publisher audit.Publisher = audit.Noop{}
	if cfg.AuditEnabled {
		w := audit.NewWriter(cfg, metrics, logger)
		publisher = w
		logger.Info("audit publishing enabled", "topic", cfg.AuditTopic, "brokers", cfg.AuditBrokers)
	}

	coordinator := portal.New(inventory, resolver, cfg.DatasetTimeout, logger, metrics)

	srv := httpapi.NewServer(cfg, coordinator, inventory, resolver, session, publisher, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Warm the view so readiness flips without waiting for the first request.
	go func() {
		warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := coordinator.Refresh(warmCtx); err != nil {
			logger.Warn("initial inventory load failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("audit publisher close error", "error", err)
	}

	logger.Info("shutdown complete")
}
