package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"mediagen/internal/http/handlers"
	"mediagen/internal/infra"
	"mediagen/internal/middleware"
)

// Options configures the route guards.
type Options struct {
	JWTSecret       string
	InternalKey     string
	RateLimitPerMin int
	CORSOrigins     []string
}

// OptionsFromConfig copies the router settings out of the app config.
func OptionsFromConfig(cfg *infra.Config) Options {
	return Options{
		JWTSecret:       cfg.JWTSecret,
		InternalKey:     cfg.InternalKey,
		RateLimitPerMin: cfg.RateLimitPerMin,
		CORSOrigins:     cfg.CORSOrigins,
	}
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(opts.CORSOrigins),
	)
	r.MethodNotAllowed(app.NotAllowed)
	r.NotFound(app.NotFound)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Post("/v1/webhooks/provider", app.ProviderWebhook)

	r.With(middleware.RequireInternalKey(opts.InternalKey)).Post("/v1/worker", app.WorkerInvoke)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Post("/v1/jobs", app.CreateJob)
		r.Get("/v1/jobs/{id}", app.GetJob)
		r.Get("/v1/status/{id}", app.GetStatus)
		r.Get("/v1/assets", app.ListAssets)
	})

	return r
}
