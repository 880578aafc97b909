package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"fossapp/internal/generate"
	"fossapp/internal/infra"
	"fossapp/internal/jobs"
	"fossapp/internal/middleware"
)

// App is the handler container injected into the router. The job store and
// rate limiter are explicit dependencies rather than package globals; state
// lives for the life of the process and is not shared across instances.
type App struct {
	Logger  infra.Logger
	Jobs    *jobs.Store
	Gen     *generate.Service
	Limiter *middleware.RateLimiter

	TileRate       int
	PlaygroundRate int
	CaseStudyRate  int
}

// NewApp wires the handler container.
func NewApp(logger infra.Logger, store *jobs.Store, gen *generate.Service, limiter *middleware.RateLimiter) *App {
	return &App{
		Logger:         logger,
		Jobs:           store,
		Gen:            gen,
		Limiter:        limiter,
		TileRate:       10,
		PlaygroundRate: 5,
		CaseStudyRate:  5,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]any{
		"success": false,
		"error":   slug,
		"message": message,
	})
}

func (a *App) identity(r *http.Request) string {
	return middleware.IdentityFromContext(r.Context())
}

// rateLimit consumes one slot for the caller in the named bucket and writes
// the limit headers. It returns false after writing the 429 response when
// the caller is over budget; no job may be created in that case.
func (a *App) rateLimit(w http.ResponseWriter, r *http.Request, bucket string, limit int) bool {
	res := a.Limiter.Check(a.identity(r), bucket, limit)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
	if !res.Allowed {
		retry := time.Until(res.Reset).Seconds()
		if retry < 1 {
			retry = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(int(retry)))
		a.error(w, http.StatusTooManyRequests, "rate_limited", "generation limit reached, retry later")
		return false
	}
	return true
}

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
