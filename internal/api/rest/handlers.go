package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/pomona/internal/scheduler"
	"github.com/fortuna/pomona/internal/service"
	"github.com/fortuna/pomona/internal/store"
)

const dateLayout = "2006-01-02"

// Handler contains dependencies for HTTP handlers
type Handler struct {
	insights    *service.InsightService
	projections *service.ProjectionService
	refresh     *service.RefreshService
	health      *service.HealthService
	log         logrus.FieldLogger
}

// NewHandler creates a new handler
func NewHandler(
	insights *service.InsightService,
	projections *service.ProjectionService,
	refresh *service.RefreshService,
	health *service.HealthService,
	log logrus.FieldLogger,
) *Handler {
	return &Handler{
		insights:    insights,
		projections: projections,
		refresh:     refresh,
		health:      health,
		log:         log,
	}
}

// HealthCheck reports dependency health; 503 when the store is down
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if report.Status == service.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, report)
}

// GetInsights returns the daily insight bundle
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	date, sport, ok := h.dateAndSport(w, r)
	if !ok {
		return
	}

	res, err := h.insights.Daily(r.Context(), date, sport)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load insights", err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

// GetProjections lists projections for a date ranked by fruit score
func (h *Handler) GetProjections(w http.ResponseWriter, r *http.Request) {
	date, sport, ok := h.dateAndSport(w, r)
	if !ok {
		return
	}

	limit, err := intParam(r, "limit", 0)
	if err != nil || limit < 0 {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	list, err := h.projections.ForDate(r.Context(), sport, date, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load projections", err)
		return
	}

	respondJSON(w, http.StatusOK, list)
}

// GetPlayerProjection returns one player's projection for a date
func (h *Handler) GetPlayerProjection(w http.ResponseWriter, r *http.Request) {
	playerID, err := strconv.Atoi(mux.Vars(r)["playerID"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid player ID", err)
		return
	}

	date, err := h.dateParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)", err)
		return
	}

	p, err := h.projections.ForPlayer(r.Context(), playerID, date)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Projection not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load projection", err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// TriggerJob runs a refresh job and waits for it. The run outlives a
// disconnected client.
func (h *Handler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())

	res, err := h.refresh.Trigger(ctx, mux.Vars(r)["job"])
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		respondError(w, http.StatusNotFound, "Unknown job", err)
	case err != nil && res != nil:
		respondJSON(w, http.StatusBadGateway, res)
	case err != nil:
		respondError(w, http.StatusInternalServerError, "Failed to run job", err)
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

// GetRefreshLogs returns the newest refresh audit rows
func (h *Handler) GetRefreshLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	logs, err := h.refresh.Logs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load refresh logs", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"logs":  logs,
		"count": len(logs),
	})
}

// GetSchedulerStatus reports scheduler state and next fire times
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.refresh.Status())
}

func (h *Handler) dateAndSport(w http.ResponseWriter, r *http.Request) (time.Time, store.Sport, bool) {
	date, err := h.dateParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)", err)
		return time.Time{}, "", false
	}

	var sport store.Sport
	if raw := r.URL.Query().Get("sport"); raw != "" {
		parsed, ok := store.ParseSport(raw)
		if !ok {
			respondError(w, http.StatusBadRequest, "Invalid sport", fmt.Errorf("unsupported sport %q", raw))
			return time.Time{}, "", false
		}
		sport = parsed
	}
	return date, sport, true
}

// dateParam reads ?date=, defaulting to today in the home zone
func (h *Handler) dateParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.insights.Today(), nil
	}
	return time.Parse(dateLayout, raw)
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
