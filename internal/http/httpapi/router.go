package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"photostudio/internal/http/handlers"
	"photostudio/internal/middleware"
)

// Options controls the middleware stack around the API.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))

		r.Get("/v1/templates", app.ListTemplates)

		r.Route("/v1/sessions", func(r chi.Router) {
			r.Post("/", app.CreateSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", app.GetSession)
				r.Delete("/", app.DeleteSession)
				r.Put("/image", app.UploadImage)
				r.Put("/instruction", app.SetInstruction)
				r.Post("/template", app.ApplyTemplate)
				r.Post("/generate", app.Generate)
				r.Delete("/generate", app.CancelGenerate)
				r.Get("/original", app.Original)
				r.Get("/result", app.Result)
				r.Get("/result.zip", app.ResultBundle)
			})
		})
	})

	return r
}
