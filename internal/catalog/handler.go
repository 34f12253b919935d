package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/symptom-intake/internal/triage"
	"github.com/wolfman30/symptom-intake/pkg/logging"
)

// AdminHandler exposes catalog maintenance endpoints.
type AdminHandler struct {
	store  Store
	logger *logging.Logger
}

func NewAdminHandler(store Store, logger *logging.Logger) *AdminHandler {
	if store == nil {
		panic("catalog: store cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{store: store, logger: logger}
}

// ListRules handles GET /admin/catalog/rules.
func (h *AdminHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListRules(r.Context())
	if err != nil {
		h.logger.Error("failed to list catalog rules", "error", err)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// GetRule handles GET /admin/catalog/rules/{symptom}.
func (h *AdminHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.FindRule(r.Context(), chi.URLParam(r, "symptom"))
	if err != nil {
		h.logger.Error("failed to load catalog rule", "error", err)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	if rule == nil {
		http.Error(w, ErrRuleNotFound.Error(), http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// PutRule handles PUT /admin/catalog/rules/{symptom}. The path key wins
// over any symptom in the body.
func (h *AdminHandler) PutRule(w http.ResponseWriter, r *http.Request) {
	var rule triage.SymptomRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	rule.Symptom = strings.ToLower(strings.TrimSpace(chi.URLParam(r, "symptom")))
	if err := h.store.UpsertRule(r.Context(), rule); err != nil {
		if errors.Is(err, ErrInvalidRule) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to upsert catalog rule", "error", err, "symptom", rule.Symptom)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	h.logger.Info("catalog rule updated", "symptom", rule.Symptom, "questions", len(rule.FollowUpQuestions))
	h.writeJSON(w, http.StatusOK, rule)
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
