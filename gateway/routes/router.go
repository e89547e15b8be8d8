package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"credo/core/events"
	"credo/gateway/middleware"
	nativecommon "credo/native/common"
	"credo/native/lending"
	"credo/observability"
)

const (
	rateLimitLedger = "ledger"
	rateLimitAdmin  = "admin"
)

type Config struct {
	Ledger        Ledger
	Registry      lending.RiskRegistry
	Prices        PriceFeed
	Emitter       events.Emitter
	Journal       EventLog
	Hub           *Hub
	// Pauses, when set, exposes the module pause switch to admins. It should
	// be the same switch handed to the pool.
	Pauses        *nativecommon.Switch
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// Metrics counts ledger operations by outcome. Nil disables counting.
	Metrics       *observability.LendingMetrics
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
	Clock         func() time.Time
	Timeout       time.Duration
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Ledger == nil || cfg.Registry == nil {
		return nil, errors.New("routes: ledger and registry required")
	}
	if cfg.Authenticator == nil {
		cfg.Authenticator = middleware.NewAuthenticator(middleware.AuthConfig{}, cfg.Logger)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter{}
	}
	origins := cfg.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	a := &api{
		ledger:         cfg.Ledger,
		registry:       cfg.Registry,
		prices:         cfg.Prices,
		emitter:        cfg.Emitter,
		journal:        cfg.Journal,
		hub:            cfg.Hub,
		pauses:         cfg.Pauses,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
		now:            cfg.Clock,
		timeout:        cfg.Timeout,
		originPatterns: origins,
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(cfg.Authenticator.Middleware())
		v1.Group(func(ledger chi.Router) {
			if cfg.RateLimiter != nil {
				ledger.Use(cfg.RateLimiter.Middleware(rateLimitLedger))
			}
			ledger.Get("/reserves", a.listReserves)
			ledger.Get("/reserves/{asset}", a.getReserve)
			ledger.Get("/accounts/{user}", a.getAccount)
			ledger.Post("/deposit", a.positionHandler("deposit", cfg.Ledger.Deposit))
			ledger.Post("/withdraw", a.positionHandler("withdraw", cfg.Ledger.Withdraw))
			ledger.Post("/borrow", a.positionHandler("borrow", cfg.Ledger.Borrow))
			ledger.Post("/repay", a.positionHandler("repay", cfg.Ledger.Repay))
			ledger.Post("/liquidate", a.liquidate)
			ledger.Get("/events", a.listEvents)
			ledger.Get("/events/stream", a.streamEvents)
		})
		v1.Group(func(admin chi.Router) {
			if cfg.RateLimiter != nil {
				admin.Use(cfg.RateLimiter.Middleware(rateLimitAdmin))
			}
			admin.Use(middleware.RequireScopes(cfg.Authenticator.AdminScope()))
			admin.Put("/prices/{asset}", a.setPrice)
			if cfg.Pauses != nil {
				admin.Get("/pause", a.getPause)
				admin.Put("/pause", a.setPause)
			}
		})
	})
	return r, nil
}
