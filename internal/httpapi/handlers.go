// Package httpapi exposes the registration service over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"confreg.org/internal/audit"
	"confreg.org/internal/auth"
	"confreg.org/internal/obs"
	"confreg.org/internal/registry"
)

const serviceName = "confreg-api"

// ReadyProbe reports whether the backing store can serve requests.
type ReadyProbe interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP layer. Zero values fall back to defaults.
type Options struct {
	Version     string
	CORSOrigins []string
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// header is believed. Empty means the direct peer is the client.
	TrustedProxies []string
	MaxBody        int64
	LoginRate      float64
	LoginBurst     int
	// SecureCookies marks the cleared logout cookie Secure.
	SecureCookies bool
}

// API is the HTTP layer over registry.Service.
type API struct {
	svc     *registry.Service
	tokens  TokenVerifier
	gate    *auth.Gate
	ready   ReadyProbe
	metrics *obs.Metrics
	audit   *audit.Logger
	log     *zap.Logger
	opts    Options
	limiter *RateLimiter
}

func New(svc *registry.Service, tokens TokenVerifier, metrics *obs.Metrics, log *zap.Logger, opts Options) *API {
	if log == nil {
		log = zap.NewNop()
	}
	if metrics == nil {
		metrics = obs.NewMetrics()
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 1 << 20
	}
	if opts.LoginRate <= 0 {
		opts.LoginRate = 1
	}
	if opts.LoginBurst <= 0 {
		opts.LoginBurst = 5
	}
	return &API{
		svc:     svc,
		tokens:  tokens,
		gate:    auth.NewGate(svc),
		ready:   svc,
		metrics: metrics,
		audit:   audit.New(log),
		log:     log,
		opts:    opts,
		limiter: NewRateLimiter(opts.LoginRate, opts.LoginBurst),
	}
}

// Handler builds the router. It fails only on invalid CORS patterns or
// trusted proxy entries.
func (a *API) Handler() (http.Handler, error) {
	cors, err := CORS(a.opts.CORSOrigins)
	if err != nil {
		return nil, err
	}
	realIP, err := RealIP(a.opts.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(RequestID, realIP, Recover(a.log), a.metrics.Instrument, Logging(a.log), SecurityHeaders, cors, MaxBodyBytes(a.opts.MaxBody))

	r.Get("/healthz", a.Healthz)
	r.Get("/readyz", a.Ready)
	r.Get("/v1/info", a.Info)
	r.Handle("/metrics", a.metrics.Handler())

	r.Route("/v1/auth", func(r chi.Router) {
		r.With(a.limiter.Middleware).Post("/login", a.loginUser)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticate)
			r.Post("/logout", a.logout)
			r.With(a.require(auth.Requirement{Kind: auth.KindUser})).Post("/change-password", a.changePassword)
			r.With(a.require(auth.Requirement{Kind: auth.KindUser})).Get("/profile", a.userProfile)
		})
	})

	r.Route("/v1/admin", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(a.limiter.Middleware).Post("/login", a.loginAdmin)
			r.Group(func(r chi.Router) {
				r.Use(a.authenticate)
				r.Post("/logout", a.logout)
				r.With(a.require(auth.Requirement{Kind: auth.KindAdmin})).Post("/change-password", a.changePassword)
				r.With(a.require(auth.Requirement{Kind: auth.KindAdmin})).Get("/profile", a.adminProfile)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(a.authenticate, a.require(auth.RequireSuperAdmin))

			r.Post("/create-user", a.createUser)
			r.Get("/users", a.listUsers)
			r.Get("/single-user", a.getUser)
			r.Delete("/delete-user", a.deleteUser)

			r.Post("/create-attendee", a.createAttendee)
			r.Get("/attendees", a.listAttendees)
			r.Get("/single-attendee", a.getAttendee)
			r.Delete("/delete-attendee", a.deleteAttendee)

			r.Post("/create-organization", a.createOrganization)
			r.Get("/organizations", a.listOrganizations)
			r.Get("/single-organization", a.getOrganization)
			r.Put("/update-organization", a.updateOrganization)
			r.Delete("/delete-organization", a.deleteOrganization)
		})
	})

	r.Route("/v1/organization", func(r chi.Router) {
		r.Use(a.authenticate, a.require(auth.RequireOrganization))
		r.Post("/create-attendee", a.createAttendee)
		r.Get("/attendees", a.listAttendees)
		r.Get("/single-attendee", a.getAttendee)
		r.Delete("/delete-attendee", a.deleteAttendee)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, codeNotFound, "Resource not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, codeBadRequest, "Method not allowed")
	})
	return r, nil
}

func (a *API) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.opts.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.ready.Ping(ctx); err != nil {
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.opts.Version,
	})
}
