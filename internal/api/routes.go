package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"sentryml/internal/bus"
	"sentryml/internal/storage"
)

type routeUpdateRequest struct {
	Kind       *string `json:"kind"`
	WebhookURL *string `json:"webhookUrl"`
	IsEnabled  *bool   `json:"isEnabled"`
}

type routeResponse struct {
	RouteID    string `json:"routeId"`
	OrgID      string `json:"orgId"`
	Kind       string `json:"kind"`
	WebhookURL string `json:"webhookUrl"`
	Enabled    bool   `json:"isEnabled"`
}

func toRouteResponse(rec storage.AlertRouteRecord) routeResponse {
	return routeResponse{
		RouteID:    rec.RouteID,
		OrgID:      rec.OrgID,
		Kind:       rec.Kind,
		WebhookURL: rec.WebhookURL,
		Enabled:    rec.Enabled,
	}
}

func (h *Handler) handleRouteGet(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, err := h.Repo.GetAlertRoute(ctx, org)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "no alert route configured"})
		return
	}
	writeJSON(w, http.StatusOK, toRouteResponse(rec))
}

func (h *Handler) handleRouteUpsert(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	var req routeUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "invalid request body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	rec, err := h.Repo.GetAlertRoute(ctx, org)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to load alert route"})
			return
		}
		rec = storage.AlertRouteRecord{
			RouteID: uuid.NewString(),
			OrgID:   org,
			Kind:    "slack",
			Enabled: true,
		}
	}
	if req.Kind != nil {
		rec.Kind = *req.Kind
	}
	if req.WebhookURL != nil {
		rec.WebhookURL = *req.WebhookURL
	}
	if req.IsEnabled != nil {
		rec.Enabled = *req.IsEnabled
	}
	if rec.Kind != "slack" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "unsupported route kind"})
		return
	}
	if rec.Enabled && !strings.HasPrefix(rec.WebhookURL, "http") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "webhookUrl must be an http(s) URL"})
		return
	}

	routeID, err := h.Repo.UpsertAlertRoute(ctx, rec)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to save alert route"})
		return
	}
	rec.RouteID = routeID
	h.publish(bus.SubjectRouteUpdated, bus.Event{OrgID: org})
	writeJSON(w, http.StatusOK, toRouteResponse(rec))
}
