package http

import (
	"net/http"

	"shortener/pkg/metrics"
	"shortener/pkg/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions selects the identity and traffic middleware. With OAuth
// nil and OwnerHeader empty, owner routes answer 401.
type RouterOptions struct {
	OAuth       *middleware.OAuthMiddleware
	OwnerHeader string

	// CreateLimit wraps link creation, e.g. middleware.RateLimit.
	CreateLimit func(http.Handler) http.Handler

	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
	// MetricsPath defaults to "/metrics".
	MetricsPath string
}

func (o RouterOptions) mountMetrics(r chi.Router) {
	if o.MetricsHandler == nil {
		return
	}
	path := o.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	r.Method(http.MethodGet, path, o.MetricsHandler)
}

func (o RouterOptions) identity(scope string) func(http.Handler) http.Handler {
	switch {
	case o.OAuth != nil:
		return o.OAuth.Authenticate(scope)
	case o.OwnerHeader != "":
		return middleware.TrustedOwnerHeader(o.OwnerHeader)
	default:
		return func(next http.Handler) http.Handler { return next }
	}
}

func baseRouter(opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Metrics(opts.Metrics))
	return r
}

// NewRouter serves the owner API and redirects.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := baseRouter(opts)
	SetupRoutes(r, h, opts)
	return r
}

// NewRedirectRouter serves redirects only.
func NewRedirectRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := baseRouter(opts)
	r.Get("/health", h.HealthCheck)
	opts.mountMetrics(r)
	r.Get("/{key}", h.Redirect)
	return r
}

func SetupRoutes(r chi.Router, handler *Handler, opts RouterOptions) {
	r.Get("/health", handler.HealthCheck)
	opts.mountMetrics(r)

	read := opts.identity("links:read")
	write := opts.identity("links:write")
	createLimit := opts.CreateLimit
	if createLimit == nil {
		createLimit = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(chimw.StripSlashes)
		r.With(write, createLimit).Post("/links", handler.CreateLink)
		r.With(read).Get("/links", handler.ListLinks)
		r.With(read).Get("/links/{id}", handler.GetLink)
		r.With(write).Patch("/links/{id}", handler.UpdateLink)
		r.With(write).Post("/links/{id}/edit", handler.UpdateLink)
		r.With(write).Delete("/links/{id}", handler.DeleteLink)
		r.With(write).Post("/links/{id}/delete", handler.DeleteLink)
		r.With(read).Get("/links/{id}/analytics", handler.Analytics)
	})
	r.Get("/{key}", handler.Redirect)
}
