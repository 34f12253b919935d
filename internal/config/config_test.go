package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "LOG_LEVEL", "SESSION_BACKEND", "MODEL_TIMEOUT", "MAX_QUESTIONS_PER_SYMPTOM", "URGENT_PHRASES", "CLINIC_TIMEZONE"} {
		t.Setenv(key, "")
	}
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SessionBackend != "memory" {
		t.Fatalf("expected memory session backend, got %s", cfg.SessionBackend)
	}
	if cfg.ModelTimeout != 20*time.Second {
		t.Fatalf("expected default model timeout, got %s", cfg.ModelTimeout)
	}
	if cfg.MaxQuestionsPerSymptom != 5 {
		t.Fatalf("expected default question cap, got %d", cfg.MaxQuestionsPerSymptom)
	}
	if cfg.UrgentPhrases != nil {
		t.Fatalf("expected no urgent phrase override, got %v", cfg.UrgentPhrases)
	}
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC clinic location")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("SESSION_BACKEND", "Redis")
	t.Setenv("MODEL_TIMEOUT", "5s")
	t.Setenv("MAX_QUESTIONS_PER_SYMPTOM", "3")
	t.Setenv("URGENT_PHRASES", "crushing pain, cannot breathe ,,unconscious")
	t.Setenv("CLINIC_TIMEZONE", "America/New_York")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env")
	}
	if cfg.SessionBackend != "redis" {
		t.Fatalf("expected lower-cased backend, got %s", cfg.SessionBackend)
	}
	if cfg.ModelTimeout != 5*time.Second {
		t.Fatalf("expected model timeout override, got %s", cfg.ModelTimeout)
	}
	if cfg.MaxQuestionsPerSymptom != 3 {
		t.Fatalf("expected question cap override, got %d", cfg.MaxQuestionsPerSymptom)
	}
	if len(cfg.UrgentPhrases) != 3 || cfg.UrgentPhrases[1] != "cannot breathe" {
		t.Fatalf("unexpected urgent phrases %v", cfg.UrgentPhrases)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
	if cfg.ClinicLocation().String() != "America/New_York" {
		t.Fatalf("unexpected clinic location %s", cfg.ClinicLocation())
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("SESSION_TTL", "forever")
	t.Setenv("CLINIC_TIMEZONE", "Mars/Olympus")
	cfg := Load()
	if cfg.WorkerCount != 4 {
		t.Fatalf("expected default worker count, got %d", cfg.WorkerCount)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("expected default session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.ClinicLocation() != time.UTC {
		t.Fatalf("expected UTC fallback for unknown timezone")
	}
}
