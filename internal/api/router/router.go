package router

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/symptom-intake/internal/catalog"
	httpmiddleware "github.com/wolfman30/symptom-intake/internal/http/middleware"
	"github.com/wolfman30/symptom-intake/internal/intake"
	"github.com/wolfman30/symptom-intake/internal/webchat"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck = func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	IntakeHandler      *intake.Handler
	CatalogAdmin       *catalog.AdminHandler
	Webchat            *webchat.Handler
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	ReadinessChecks    map[string]ReadinessCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}

	r.Get("/health", health)
	r.Get("/ready", readiness(cfg.ReadinessChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(httpmiddleware.RateLimit(cfg.RateLimitPerMinute))
		if cfg.IntakeHandler != nil {
			v1.With(middleware.AllowContentType("application/json")).Post("/sessions", cfg.IntakeHandler.Start)
			v1.Get("/sessions/{sessionID}", cfg.IntakeHandler.Get)
			v1.With(middleware.AllowContentType("application/json")).Post("/sessions/{sessionID}/turns", cfg.IntakeHandler.Turn)
		}
		if cfg.Webchat != nil {
			v1.Get("/ws", cfg.Webchat.HandleWebSocket)
		}
	})

	if cfg.CatalogAdmin != nil {
		r.Route("/admin/catalog", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret, httpmiddleware.ScopeCatalogWrite))
			admin.Get("/rules", cfg.CatalogAdmin.ListRules)
			admin.Get("/rules/{symptom}", cfg.CatalogAdmin.GetRule)
			admin.Put("/rules/{symptom}", cfg.CatalogAdmin.PutRule)
		})
	}

	return r
}

func health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readiness(checks map[string]ReadinessCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(names))
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": state, "checks": results})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
