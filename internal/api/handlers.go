// Package api implements the HTTP surface: admin endpoints, inbound
// webhook receivers, and health reporting.
package api

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hearthplan/hearthplan/internal/database"
	"github.com/hearthplan/hearthplan/internal/models"
	"github.com/hearthplan/hearthplan/internal/registration"
)

// Handler serves event and household endpoints.
type Handler struct {
	events    *database.EventRepository
	merges    *database.MergeRecordRepository
	household *database.HouseholdRepository
	registrar *registration.Registrar
	db        *sql.DB
	logger    *slog.Logger
	startTime time.Time
}

// NewHandler creates the core API handler.
func NewHandler(
	events *database.EventRepository,
	merges *database.MergeRecordRepository,
	household *database.HouseholdRepository,
	registrar *registration.Registrar,
	db *sql.DB,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		events:    events,
		merges:    merges,
		household: household,
		registrar: registrar,
		db:        db,
		logger:    logger,
		startTime: time.Now(),
	}
}

// ListEvents handles GET /api/events?status=&limit=.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.EventStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = models.EventStatusProposed
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 500 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := h.events.ListByStatus(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("failed to list events", "status", status, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// EventSubroutes dispatches /api/events/{fingerprint} and its actions.
func (h *Handler) EventSubroutes(authed func(http.Handler) http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		// parts: ["api", "events", fingerprint, action?]
		if len(parts) < 3 || parts[2] == "" {
			http.Error(w, "Event fingerprint required", http.StatusBadRequest)
			return
		}
		fingerprint := parts[2]

		if len(parts) == 3 {
			h.getEvent(w, r, fingerprint)
			return
		}

		var action http.HandlerFunc
		switch parts[3] {
		case "attended":
			action = func(w http.ResponseWriter, r *http.Request) { h.markAttended(w, r, fingerprint) }
		case "register":
			action = func(w http.ResponseWriter, r *http.Request) { h.triggerRegistration(w, r, fingerprint) }
		case "manual-registration":
			action = func(w http.ResponseWriter, r *http.Request) { h.markManual(w, r, fingerprint) }
		case "merges":
			h.listMerges(w, r, fingerprint)
			return
		default:
			http.Error(w, "Unknown action", http.StatusNotFound)
			return
		}
		authed(action).ServeHTTP(w, r)
	}
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	event, err := h.events.GetByFingerprint(r.Context(), fingerprint)
	if err != nil {
		h.logger.Error("failed to get event", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

func (h *Handler) listMerges(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records, err := h.merges.ListByPrimary(r.Context(), fingerprint)
	if err != nil {
		h.logger.Error("failed to list merge records", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"merges": records,
		"count":  len(records),
	})
}

func (h *Handler) markAttended(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.events.MarkAttended(r.Context(), fingerprint); err != nil {
		h.logger.Error("failed to mark attendance", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "attended"})
}

func (h *Handler) triggerRegistration(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	event, err := h.events.GetByFingerprint(r.Context(), fingerprint)
	if err != nil {
		h.logger.Error("failed to get event", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	actor, _ := authUser(r)
	attempt, err := h.registrar.Register(r.Context(), event, actor)
	if err == registration.ErrEmergencyStopped {
		http.Error(w, "Automated registration is emergency stopped", http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("registration attempt failed", "fingerprint", fingerprint, "error", err)
		// The attempt record, when present, tells the caller what happened.
		if attempt != nil {
			writeJSON(w, http.StatusUnprocessableEntity, attempt)
			return
		}
		http.Error(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, attempt)
}

func (h *Handler) markManual(w http.ResponseWriter, r *http.Request, fingerprint string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	event, err := h.events.GetByFingerprint(r.Context(), fingerprint)
	if err != nil {
		h.logger.Error("failed to get event", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if event == nil {
		http.Error(w, "Event not found", http.StatusNotFound)
		return
	}

	if err := h.registrar.MarkManual(r.Context(), event); err != nil {
		h.logger.Error("failed to mark manual registration", "fingerprint", fingerprint, "error", err)
		http.Error(w, "Could not mark for manual registration", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(models.EventStatusManualSent)})
}

// GetHousehold handles GET /api/household.
func (h *Handler) GetHousehold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	cfg, err := h.household.Get(r.Context())
	if err != nil {
		h.logger.Error("failed to get household config", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// UpdateHousehold handles PUT /api/household.
func (h *Handler) UpdateHousehold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var cfg models.HouseholdConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateHousehold(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.household.Save(r.Context(), cfg); err != nil {
		h.logger.Error("failed to save household config", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, cfg)
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	if err := database.HealthCheck(r.Context(), h.db); err != nil {
		h.logger.Error("health check failed", "error", err)
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":         status,
		"uptime_seconds": int(time.Since(h.startTime).Seconds()),
		"emergency_stop": h.registrar.Stopped(),
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Error("failed to encode response", "error", err)
	}
}
