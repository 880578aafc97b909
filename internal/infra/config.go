package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	JWTSecret   string
	DatabaseURL string
	GeoIPDBPath string

	LLMAPIKey         string
	LLMBaseURL        string
	LLMBaselineModel  string
	LLMEscalatedModel string

	APSClientID     string
	APSClientSecret string
	APSBaseURL      string
	APSActivity     string

	S3Bucket    string
	S3Region    string
	S3Prefix    string
	StoragePath string

	FXRateURL      string
	FXFallbackRate float64

	JobTTL                time.Duration
	MaxPlaygroundAttempts int

	TileRatePerMin       int
	PlaygroundRatePerMin int
	CaseStudyRatePerMin  int

	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout of zero keeps long-lived SSE responses alive.
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		GeoIPDBPath: os.Getenv("GEOIP_DB_PATH"),

		LLMAPIKey:         os.Getenv("LLM_API_KEY"),
		LLMBaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMBaselineModel:  getEnv("LLM_BASELINE_MODEL", "gpt-4o-mini"),
		LLMEscalatedModel: getEnv("LLM_ESCALATED_MODEL", "gpt-4o"),

		APSClientID:     os.Getenv("APS_CLIENT_ID"),
		APSClientSecret: os.Getenv("APS_CLIENT_SECRET"),
		APSBaseURL:      getEnv("APS_BASE_URL", "https://developer.api.autodesk.com"),
		APSActivity:     getEnv("APS_ACTIVITY", "fossapp.RunLisp+prod"),

		S3Bucket:    os.Getenv("S3_BUCKET"),
		S3Region:    getEnv("S3_REGION", "eu-central-1"),
		S3Prefix:    getEnv("S3_PREFIX", "drawings"),
		StoragePath: getEnv("STORAGE_PATH", "./storage"),

		FXRateURL:      getEnv("FX_RATE_URL", "https://api.frankfurter.app/latest?from=USD&to=EUR"),
		FXFallbackRate: getEnvFloat("FX_FALLBACK_RATE", 0.92),

		JobTTL:                time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 30)),
		MaxPlaygroundAttempts: getEnvInt("PLAYGROUND_MAX_ATTEMPTS", 3),

		TileRatePerMin:       getEnvInt("TILE_RATE_PER_MINUTE", 10),
		PlaygroundRatePerMin: getEnvInt("PLAYGROUND_RATE_PER_MINUTE", 5),
		CaseStudyRatePerMin:  getEnvInt("CASESTUDY_RATE_PER_MINUTE", 5),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = splitAndTrim(origins)
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	if cfg.APSClientID == "" || cfg.APSClientSecret == "" {
		return nil, fmt.Errorf("APS_CLIENT_ID and APS_CLIENT_SECRET are required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitAndTrim(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
