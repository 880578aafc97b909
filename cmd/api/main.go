package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"fossapp/internal/adapter/repo"
	"fossapp/internal/generate"
	"fossapp/internal/http/handlers"
	httpapi "fossapp/internal/http/httpapi"
	"fossapp/internal/imageprep"
	"fossapp/internal/infra"
	"fossapp/internal/infra/geoip"
	"fossapp/internal/jobs"
	"fossapp/internal/middleware"
	"fossapp/internal/providers/aps"
	"fossapp/internal/providers/drive"
	"fossapp/internal/providers/fx"
	"fossapp/internal/providers/lisp"
	"fossapp/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	scripts, err := lisp.NewClient(lisp.Options{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure script generation client")
	}

	cad, err := aps.NewClient(aps.Options{
		ClientID:     cfg.APSClientID,
		ClientSecret: cfg.APSClientSecret,
		BaseURL:      cfg.APSBaseURL,
		Activity:     cfg.APSActivity,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure CAD automation client")
	}

	// Artifact storage: S3 when a bucket is configured, local filesystem
	// otherwise (development).
	var (
		uploader generate.Uploader
		buckets  generate.BucketStore
	)
	if cfg.S3Bucket != "" {
		s3up, err := drive.NewS3Uploader(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure S3 storage")
		}
		uploader = s3up
		buckets = s3up
	} else {
		fileStore, err := storage.NewFileStore(cfg.StoragePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure local storage")
		}
		uploader = fileStore
		buckets = fileStore
		logger.Warn().Str("path", fileStore.BasePath()).Msg("S3_BUCKET not set, storing artifacts locally")
	}

	// Project metadata is optional; without it only the case-study
	// workflow is disabled.
	var projects generate.ProjectSource
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		projects = repo.NewProjectRepository(pool)
	} else {
		logger.Warn().Msg("DATABASE_URL not set, case-study generation disabled")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip resolver unavailable")
	}

	converter := fx.NewConverter(fx.Options{
		RateURL:      cfg.FXRateURL,
		FallbackRate: cfg.FXFallbackRate,
	})

	store := jobs.NewStore(logger, cfg.JobTTL)
	defer store.Close()

	gen := generate.NewService(generate.Options{
		Jobs:           store,
		Logger:         logger,
		Scripts:        scripts,
		CAD:            cad,
		Drive:          uploader,
		FX:             converter,
		Images:         imageprep.NewProcessor(imageprep.Options{}),
		Projects:       projects,
		Buckets:        buckets,
		BaselineModel:  cfg.LLMBaselineModel,
		EscalatedModel: cfg.LLMEscalatedModel,
		MaxAttempts:    cfg.MaxPlaygroundAttempts,
	})

	limiter := middleware.NewRateLimiter(time.Minute)
	app := handlers.NewApp(logger, store, gen, limiter)
	app.TileRate = cfg.TileRatePerMin
	app.PlaygroundRate = cfg.PlaygroundRatePerMin
	app.CaseStudyRate = cfg.CaseStudyRatePerMin

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		GeoIP:          resolver,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
