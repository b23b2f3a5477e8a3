package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sentryml/internal/bus"
	"sentryml/internal/storage"
)

type monitorUpdateRequest struct {
	Enabled           *bool    `json:"isEnabled"`
	BaselineDays      *int     `json:"baselineDays"`
	CurrentDays       *int     `json:"currentDays"`
	NumBins           *int     `json:"numBins"`
	MinSamples        *int     `json:"minSamples"`
	WarnThreshold     *float64 `json:"warnThreshold"`
	CriticalThreshold *float64 `json:"criticalThreshold"`
}

type monitorResponse struct {
	ModelID           string  `json:"modelId"`
	IsEnabled         bool    `json:"isEnabled"`
	BaselineDays      int     `json:"baselineDays"`
	CurrentDays       int     `json:"currentDays"`
	NumBins           int     `json:"numBins"`
	MinSamples        int     `json:"minSamples"`
	WarnThreshold     float64 `json:"warnThreshold"`
	CriticalThreshold float64 `json:"criticalThreshold"`
}

func monitorToResponse(rec storage.MonitorRecord) monitorResponse {
	return monitorResponse{
		ModelID:           rec.ModelID,
		IsEnabled:         rec.Enabled,
		BaselineDays:      rec.BaselineDays,
		CurrentDays:       rec.CurrentDays,
		NumBins:           rec.NumBins,
		MinSamples:        rec.MinSamples,
		WarnThreshold:     rec.WarnThreshold,
		CriticalThreshold: rec.CriticalThreshold,
	}
}

func defaultMonitor(org, modelID string) storage.MonitorRecord {
	return storage.MonitorRecord{
		OrgID:             org,
		ModelID:           modelID,
		Enabled:           false,
		BaselineDays:      1,
		CurrentDays:       1,
		NumBins:           10,
		MinSamples:        3,
		WarnThreshold:     0.1,
		CriticalThreshold: 0.2,
	}
}

func validateMonitor(rec storage.MonitorRecord) error {
	if rec.BaselineDays < 1 || rec.CurrentDays < 1 {
		return errors.New("window lengths must be at least 1 day")
	}
	if rec.NumBins < 2 {
		return errors.New("numBins must be at least 2")
	}
	if rec.MinSamples < 1 {
		return errors.New("minSamples must be at least 1")
	}
	if rec.WarnThreshold <= 0 || rec.CriticalThreshold <= 0 {
		return errors.New("thresholds must be positive")
	}
	return nil
}

func (h *Handler) handleMonitorsList(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	monitors, err := h.Repo.ListMonitors(ctx, org)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list monitors"})
		return
	}
	out := make([]monitorResponse, 0, len(monitors))
	for _, rec := range monitors {
		out = append(out, monitorToResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"monitors": out})
}

func (h *Handler) handleMonitorUpdate(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	modelID := chi.URLParam(r, "modelID")
	var req monitorUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, err := h.Repo.GetMonitorByModel(ctx, org, modelID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to load monitor"})
			return
		}
		rec = defaultMonitor(org, modelID)
	}
	if req.Enabled != nil {
		rec.Enabled = *req.Enabled
	}
	if req.BaselineDays != nil {
		rec.BaselineDays = *req.BaselineDays
	}
	if req.CurrentDays != nil {
		rec.CurrentDays = *req.CurrentDays
	}
	if req.NumBins != nil {
		rec.NumBins = *req.NumBins
	}
	if req.MinSamples != nil {
		rec.MinSamples = *req.MinSamples
	}
	if req.WarnThreshold != nil {
		rec.WarnThreshold = *req.WarnThreshold
	}
	if req.CriticalThreshold != nil {
		rec.CriticalThreshold = *req.CriticalThreshold
	}
	if err := validateMonitor(rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		return
	}

	if _, err := h.Repo.UpsertMonitor(ctx, rec); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to persist monitor"})
		return
	}
	h.publish(bus.SubjectMonitorUpdated, bus.Event{OrgID: org, ModelID: modelID})
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "monitor": monitorToResponse(rec)})
}
