package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakefarm/gateway/middleware"
	"stakefarm/native/farm"
	"stakefarm/storage/journal"
)

const (
	ScopeWrite  = "farm:write"
	ScopeGovern = "farm:govern"

	rateKeyRead       = "read"
	rateKeyWrite      = "write"
	rateKeyGovernance = "governance"
)

type Config struct {
	Engine *farm.Engine
	// Journal is optional; /v1/journal is only mounted when set.
	Journal *journal.Journal
	// Stream serves /v1/stream when set.
	Stream        http.Handler
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	// TrustCallerHeader accepts X-Farm-Caller when no token identified the
	// caller. Only for deployments behind an authenticating proxy.
	TrustCallerHeader bool
	ServiceName       string
	Logger            *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Engine == nil {
		return nil, errors.New("routes: engine required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "farmd"
	}
	api := &farmAPI{
		engine:      cfg.Engine,
		journal:     cfg.Journal,
		trustHeader: cfg.TrustCallerHeader,
		logger:      cfg.Logger,
	}

	r := chi.NewRouter()
	obs := cfg.Observability
	if obs != nil {
		r.Use(obs.Middleware("root"))
	}

	r.Get("/healthz", api.health)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.Stream != nil {
		r.Handle("/v1/stream", cfg.Stream)
	}

	group := func(name, rateKey string, scopes []string, mount func(chi.Router)) func(chi.Router) {
		return func(sr chi.Router) {
			if cfg.Authenticator != nil {
				sr.Use(cfg.Authenticator.Middleware(scopes...))
			}
			if cfg.RateLimiter != nil {
				sr.Use(cfg.RateLimiter.Middleware(rateKey))
			}
			if obs != nil {
				sr.Use(obs.Middleware(name))
			}
			mount(sr)
		}
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(group("read", rateKeyRead, nil, api.mountReads))
		v1.Group(group("ledger", rateKeyWrite, []string{ScopeWrite}, api.mountWrites))
		v1.Route("/governance", group("governance", rateKeyGovernance, []string{ScopeGovern}, api.mountGovernance))
	})

	return otelhttp.NewHandler(r, cfg.ServiceName), nil
}
