package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, logger zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api/makeup", func(r chi.Router) {
		submit := r.With()
		if opts.RateLimitPerMin > 0 {
			submit = r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
		}
		submit.Post("/process", app.ProcessMakeup)

		r.Post("/webhook", app.MakeupWebhook)
		r.Get("/status/{request_id}", app.MakeupStatus)
		r.Get("/wait/{request_id}", app.MakeupWait)
	})

	return r
}
