package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"jwtpizza.org/internal/auth"
	"jwtpizza.org/internal/obs"
	"jwtpizza.org/internal/pizza"
)

// Pinger is anything that can report its own reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the backing stores before the service reports ready.
type ReadyProbe struct {
	DB    *sql.DB
	Redis Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			return err
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Options wires the HTTP layer.
type Options struct {
	Sessions *auth.Sessions
	Pizza    *pizza.Service
	Metrics  *obs.Metrics
	Logger   zerolog.Logger
	Ready    ReadyProbe
	Version  string

	// RateBurst and RatePerSecond bound register and login per client IP.
	RateBurst     int
	RatePerSecond float64
	MaxBodyBytes  int64
}

// API is the HTTP layer.
type API struct {
	router   chi.Router
	sessions *auth.Sessions
	pizza    *pizza.Service
	policy   *auth.Policy
	metrics  *obs.Metrics
	logger   zerolog.Logger
	ready    ReadyProbe
	version  string
	limiter  *ipLimiter
	maxBody  int64
}

func New(opts Options) (*API, error) {
	if opts.Sessions == nil || opts.Pizza == nil {
		return nil, errors.New("httpapi: sessions and pizza service are required")
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 20
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 10
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	a := &API{
		sessions: opts.Sessions,
		pizza:    opts.Pizza,
		policy:   opts.Sessions.Policy(),
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		ready:    opts.Ready,
		version:  opts.Version,
		limiter:  newIPLimiter(opts.RateBurst, opts.RatePerSecond),
		maxBody:  opts.MaxBodyBytes,
	}
	a.router = a.routes()
	return a, nil
}

func (a *API) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	if a.metrics != nil {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	r.With(a.limiter.Wrap).Post("/api/auth", a.gate(auth.ActionRegister, a.handleRegister))
	r.With(a.limiter.Wrap).Put("/api/auth", a.gate(auth.ActionLogin, a.handleLogin))
	r.Delete("/api/auth", a.gate(auth.ActionLogout, a.handleLogout))
	r.Put("/api/auth/{userID}", a.gate(auth.ActionUpdateUser, a.handleUpdateUser))

	r.Get("/api/franchise", a.gate(auth.ActionListFranchises, a.handleListFranchises))
	r.Post("/api/franchise", a.gate(auth.ActionCreateFranchise, a.handleCreateFranchise))
	r.Get("/api/franchise/{id}", a.gate(auth.ActionListUserFranchises, a.handleListUserFranchises))
	r.Delete("/api/franchise/{id}", a.gate(auth.ActionDeleteFranchise, a.handleDeleteFranchise))
	r.Post("/api/franchise/{id}/store", a.gate(auth.ActionCreateStore, a.handleCreateStore))
	r.Delete("/api/franchise/{id}/store/{storeID}", a.gate(auth.ActionDeleteStore, a.handleDeleteStore))

	r.Get("/api/order/menu", a.gate(auth.ActionViewMenu, a.handleMenu))
	r.Put("/api/order/menu", a.gate(auth.ActionAddMenuItem, a.handleAddMenuItem))
	r.Get("/api/order", a.gate(auth.ActionListOrders, a.handleListOrders))
	r.Post("/api/order", a.gate(auth.ActionCreateOrder, a.handleCreateOrder))
	return r
}

// Handler returns the router wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = a.metrics.Instrument(h)
	h = Logging(a.logger)(h)
	h = RequestID(h)
	h = Recover(a.logger)(h)
	return h
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": obs.ServiceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
