package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"credo/config"
	"credo/core/events"
	"credo/gateway/middleware"
	"credo/gateway/routes"
	"credo/integrations/webhooks"
	"credo/observability"
	nativecommon "credo/native/common"
	"credo/native/lending"
	"credo/storage"
	"credo/storage/journal"
	"credo/storage/ledger"
)

// node owns every long-lived component of a running credod.
type node struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.LevelDB
	store   *ledger.Store
	pool    *lending.Pool
	pauses  *nativecommon.Switch
	journal *journal.Journal
	hub     *routes.Hub
	hooks   *webhooks.Dispatcher
	metrics *observability.LendingMetrics
	handler http.Handler
}

func newNode(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*node, error) {
	n := &node{cfg: cfg, logger: logger, metrics: observability.Lending()}
	ready := false
	defer func() {
		if !ready {
			n.Close()
		}
	}()

	market, err := cfg.Market()
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	n.db, err = storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	n.store = ledger.New(n.db)
	n.journal, err = journal.Open(filepath.Join(cfg.DataDir, "journal.db"), logger)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	n.pool = lending.NewPool(market.Registry, market.Oracle, market.Model)
	n.pool.SetLogger(logger)
	if err := n.pool.SetOptions(cfg.Pool); err != nil {
		return nil, err
	}
	n.pauses = nativecommon.NewSwitch()
	n.pool.SetPauses(n.pauses)
	n.pool.SetStore(n.store)
	if err := n.pool.Load(ctx); err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}

	n.hub = routes.NewHub()
	emitter := events.Fanout{n.journal, n.hub, observability.NewEventSink(n.metrics)}
	if cfg.Webhook.Enabled() {
		n.hooks, err = webhooks.NewDispatcher(cfg.Webhook.Endpoint, []byte(cfg.Webhook.Secret),
			webhooks.WithRetryPolicy(cfg.Webhook.MaxAttempts, cfg.Webhook.MinBackoff, cfg.Webhook.MaxBackoff),
			webhooks.WithEventTypes(cfg.Webhook.Events...),
			webhooks.WithLogger(logger),
			webhooks.WithMetrics(n.metrics))
		if err != nil {
			return nil, err
		}
		emitter = append(emitter, n.hooks)
	}
	n.pool.SetEmitter(emitter)

	listed := make(map[string]struct{})
	for _, asset := range n.pool.Listed() {
		listed[asset] = struct{}{}
	}
	for _, asset := range cfg.Assets {
		symbol := lending.NormalizeAsset(asset.Symbol)
		if _, ok := listed[symbol]; ok || !asset.IsActive() {
			continue
		}
		if err := n.pool.ListReserve(ctx, symbol); err != nil && !errors.Is(err, lending.ErrReserveAlreadyListed) {
			return nil, fmt.Errorf("list %s: %w", symbol, err)
		}
		logger.Info("reserve listed", slog.String("asset", symbol))
	}

	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    cfg.Auth.Enabled,
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ScopeClaim: cfg.Auth.ScopeClaim,
		AdminScope: cfg.Auth.AdminScope,
		ClockSkew:  cfg.Auth.ClockSkew,
	}, logger)
	if !cfg.Auth.Enabled {
		logger.Warn("auth disabled; callers are identified by the " + middleware.DevUserHeader + " header")
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"ledger": {RatePerSecond: cfg.RateLimit.Ledger.RatePerSecond, Burst: cfg.RateLimit.Ledger.Burst, DefaultTokens: 1, Tokens: cfg.RateLimit.Tokens},
			"admin":  {RatePerSecond: cfg.RateLimit.Admin.RatePerSecond, Burst: cfg.RateLimit.Admin.Burst, DefaultTokens: 1},
		}, logger)
		limiter.SetMetrics(n.metrics)
	}

	router, err := routes.New(routes.Config{
		Ledger:        n.pool,
		Registry:      market.Registry,
		Prices:        market.Oracle,
		Emitter:       emitter,
		Journal:       n.journal,
		Hub:           n.hub,
		Pauses:        n.pauses,
		Authenticator: auth,
		RateLimiter:   limiter,
		Metrics:       n.metrics,
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: serviceName,
			LogRequests: true,
		}, n.metrics, logger),
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", middleware.DevUserHeader},
		},
		Logger:  logger,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure routes: %w", err)
	}
	n.handler = router
	if cfg.Telemetry.Traces {
		n.handler = otelhttp.NewHandler(router, serviceName)
	}
	ready = true
	return n, nil
}

// Close releases resources in reverse start order. It is safe on a partially
// built node.
func (n *node) Close() {
	if n.hooks != nil {
		n.hooks.Close()
	}
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.logger.Warn("close journal", slog.Any("error", err))
		}
	}
	if n.db != nil {
		if err := n.db.Close(); err != nil {
			n.logger.Warn("close ledger db", slog.Any("error", err))
		}
	}
}
