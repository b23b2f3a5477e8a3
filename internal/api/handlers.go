package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"sentryml/internal/bus"
	"sentryml/internal/storage"
)

// Notifier is the outbound notification port used for user-driven
// resolve/close confirmations.
type Notifier interface {
	Send(ctx context.Context, webhookURL, text string) error
}

type Handler struct {
	Repo      *storage.Repository
	Bus       *bus.Publisher
	Notifier  Notifier
	UIBaseURL string
	Timeout   time.Duration
	Logger    *slog.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Get("/monitors", h.handleMonitorsList)
		r.Put("/monitors/{modelID}", h.handleMonitorUpdate)
		r.Get("/incidents", h.handleIncidentsList)
		r.Get("/incidents/{incidentID}", h.handleIncidentDetail)
		r.Post("/incidents/{incidentID}/ack", h.handleIncidentAck)
		r.Post("/incidents/{incidentID}/resolve", h.handleIncidentResolve)
		r.Post("/incidents/{incidentID}/close", h.handleIncidentClose)
		r.Get("/routes", h.handleRouteGet)
		r.Put("/routes", h.handleRouteUpsert)
	})
}

// orgID extracts the caller's organization scope. Authentication itself lives
// in front of this service; an empty header is a client error.
func orgID(r *http.Request) string {
	return r.Header.Get("X-Org-ID")
}

func userID(r *http.Request) *string {
	id := r.Header.Get("X-User-ID")
	if id == "" {
		return nil
	}
	return &id
}

func requireOrg(w http.ResponseWriter, r *http.Request) (string, bool) {
	org := orgID(r)
	if org == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": "X-Org-ID header required"})
		return "", false
	}
	return org, true
}

func (h *Handler) publish(subject string, evt bus.Event) {
	if h.Bus == nil {
		return
	}
	if err := h.Bus.Publish(subject, evt); err != nil && h.Logger != nil {
		h.Logger.Error("failed to publish event", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
