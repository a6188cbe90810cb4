package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"gitea.jw6.us/james/odoolink/internal/auth"
	"gitea.jw6.us/james/odoolink/internal/config"
	"gitea.jw6.us/james/odoolink/internal/http/api"
	httperrors "gitea.jw6.us/james/odoolink/internal/http/errors"
	"gitea.jw6.us/james/odoolink/internal/http/ratelimit"
	"gitea.jw6.us/james/odoolink/internal/metrics"
	"gitea.jw6.us/james/odoolink/internal/store"
)

// Limiters holds the per-IP limiters so the caller can stop them on
// shutdown.
type Limiters struct {
	Contact  *ratelimit.IPRateLimiter
	Schedule *ratelimit.IPRateLimiter
	Operator *ratelimit.IPRateLimiter
}

// NewLimiters builds the limiters for the public and operator endpoints.
func NewLimiters(trustedProxies []string) *Limiters {
	return &Limiters{
		// Contact form: 1 request every 10 seconds, burst of 5
		Contact: ratelimit.NewIPRateLimiter(rate.Every(10*time.Second), 5, 10*time.Minute, trustedProxies),
		// Scheduling writes a meeting: 3 per 15 minutes
		Schedule: ratelimit.PerWindow(3, 15*time.Minute, trustedProxies),
		// Status and debug: 2 requests per second, burst of 10
		Operator: ratelimit.NewIPRateLimiter(rate.Limit(2), 10, 5*time.Minute, trustedProxies),
	}
}

// Stop ends the limiters' background sweeps.
func (l *Limiters) Stop() {
	l.Contact.Stop()
	l.Schedule.Stop()
	l.Operator.Stop()
}

// NewRouter wires the health, metrics, login and API routes. ledger and
// login may be nil.
func NewRouter(cfg *config.Config, h *api.Handler, ledger *store.Store, operators *auth.Operators, login *auth.Login, limits *Limiters) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if ledger != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := ledger.HealthCheck(ctx); err != nil {
				httperrors.LogError(r, "readiness check", err)
				http.Error(w, "unready", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	if login != nil {
		r.Route("/auth", func(r chi.Router) {
			r.Use(limits.Operator.Middleware())
			r.Get("/login", login.Begin)
			r.Get("/callback", login.Callback)
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(api.CORS)

		r.Route("/contact/submit", func(r chi.Router) {
			r.Options("/", api.Preflight)
			r.Get("/", h.ContactStatus)
			r.With(limits.Contact.Middleware()).Post("/", h.SubmitContact)
		})

		r.Route("/booking", func(r chi.Router) {
			r.With(limits.Contact.Middleware()).Get("/slots", h.Slots)
			r.Options("/schedule", api.Preflight)
			r.With(limits.Schedule.Middleware()).Post("/schedule", h.Schedule)
		})

		r.With(limits.Operator.Middleware()).Get("/status/odoo", h.OdooStatus)

		r.Route("/debug", func(r chi.Router) {
			r.Use(limits.Operator.Middleware())
			r.Use(operators.Require)
			r.Get("/calendar-events", h.CalendarEvents)
			r.Get("/contacts", h.Contacts)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.Write(w, r, httperrors.New(httperrors.CodeNotFound, "not found"))
	})

	return r
}
