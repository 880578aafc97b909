package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"fossapp/internal/http/handlers"
	"fossapp/internal/infra/geoip"
	"fossapp/internal/middleware"
)

// Options carries the cross-cutting pieces the router wires around the
// handlers.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	GeoIP          geoip.CountryResolver
}

// NewRouter builds the service's routing table. Generation endpoints sit
// behind JWT auth; stream and download use the job id itself as the bearer
// credential so EventSource clients (which cannot set headers) still work.
func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger, opts.GeoIP),
	)
	if len(opts.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(opts.AllowedOrigins))
	}

	r.Get("/v1/healthz", app.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Post("/v1/tiles/generate", app.TileGenerate)
		r.Post("/v1/playground/generate", app.PlaygroundGenerate)
		r.Post("/v1/case-studies/generate", app.CaseStudyGenerate)
	})

	r.Route("/v1/jobs/{job_id}", func(r chi.Router) {
		r.Get("/", app.JobStatus)
		r.Get("/stream", app.JobStream)
		r.Get("/download/dwg", app.DownloadDWG)
		r.Get("/download/png", app.DownloadPNG)
		r.Get("/download/zip", app.DownloadZip)
	})

	return r
}
