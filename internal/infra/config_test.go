package infra

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("LLM_API_KEY", "test-llm-key")
	t.Setenv("APS_CLIENT_ID", "test-client")
	t.Setenv("APS_CLIENT_SECRET", "test-secret-2")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("JOB_TTL_MINUTES", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.JobTTL != 30*time.Minute {
		t.Fatalf("JobTTL = %v, want 30m", cfg.JobTTL)
	}
	if cfg.MaxPlaygroundAttempts != 3 {
		t.Fatalf("MaxPlaygroundAttempts = %d, want 3", cfg.MaxPlaygroundAttempts)
	}
	if cfg.LLMBaselineModel != "gpt-4o-mini" || cfg.LLMEscalatedModel != "gpt-4o" {
		t.Fatalf("model defaults = %q / %q", cfg.LLMBaselineModel, cfg.LLMEscalatedModel)
	}
	if cfg.HTTPWriteTimeout != 0 {
		t.Fatalf("HTTPWriteTimeout = %v, want 0 for streaming", cfg.HTTPWriteTimeout)
	}
}

func TestLoadConfigRequiredVariables(t *testing.T) {
	cases := []struct {
		name  string
		unset string
	}{
		{name: "jwt secret", unset: "JWT_SECRET"},
		{name: "llm key", unset: "LLM_API_KEY"},
		{name: "aps client", unset: "APS_CLIENT_ID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tc.unset, "")
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("LoadConfig succeeded without %s", tc.unset)
			}
		})
	}
}

func TestLoadConfigParsesAllowedOrigins(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := []string{"https://app.example.com", "https://staging.example.com"}
	if len(cfg.AllowedOrigins) != len(want) {
		t.Fatalf("AllowedOrigins = %#v, want %#v", cfg.AllowedOrigins, want)
	}
	for i, origin := range want {
		if cfg.AllowedOrigins[i] != origin {
			t.Fatalf("AllowedOrigins[%d] = %q, want %q", i, cfg.AllowedOrigins[i], origin)
		}
	}
}
