package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sentryml/internal/incident"
	"sentryml/internal/storage"
)

var errInvalidState = errors.New("invalid incident state for this action")

type incidentResponse struct {
	IncidentID     string     `json:"incidentId"`
	ModelID        string     `json:"modelId"`
	Metric         string     `json:"metric"`
	State          string     `json:"state"`
	Severity       string     `json:"severity"`
	Value          float64    `json:"value"`
	OpenedAt       time.Time  `json:"openedAt"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`
	ClosedAt       *time.Time `json:"closedAt,omitempty"`
	AcknowledgedBy *string    `json:"acknowledgedBy,omitempty"`
}

type incidentEventResponse struct {
	TS           time.Time `json:"ts"`
	Action       string    `json:"action"`
	PrevState    string    `json:"prevState"`
	NewState     string    `json:"newState"`
	PrevSeverity *string   `json:"prevSeverity,omitempty"`
	NewSeverity  *string   `json:"newSeverity,omitempty"`
	Value        *float64  `json:"value,omitempty"`
	Actor        string    `json:"actor"`
	ActorUserID  *string   `json:"actorUserId,omitempty"`
}

func toIncidentResponse(rec storage.IncidentRecord) incidentResponse {
	return incidentResponse{
		IncidentID:     rec.IncidentID,
		ModelID:        rec.ModelID,
		Metric:         rec.Metric,
		State:          rec.State,
		Severity:       rec.Severity,
		Value:          rec.Value,
		OpenedAt:       rec.OpenedAt,
		AcknowledgedAt: rec.AcknowledgedAt,
		ResolvedAt:     rec.ResolvedAt,
		ClosedAt:       rec.ClosedAt,
		AcknowledgedBy: rec.AcknowledgedBy,
	}
}

func toIncidentEventResponse(rec storage.IncidentEventRecord) incidentEventResponse {
	return incidentEventResponse{
		TS:           rec.TS,
		Action:       rec.Action,
		PrevState:    rec.PrevState,
		NewState:     rec.NewState,
		PrevSeverity: rec.PrevSeverity,
		NewSeverity:  rec.NewSeverity,
		Value:        rec.Value,
		Actor:        rec.Actor,
		ActorUserID:  rec.ActorUserID,
	}
}

func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func (h *Handler) handleIncidentsList(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	openOnly := r.URL.Query().Get("open") == "true"
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	incidents, err := h.Repo.ListIncidents(ctx, org, openOnly, 200)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list incidents"})
		return
	}
	out := make([]incidentResponse, 0, len(incidents))
	for _, rec := range incidents {
		out = append(out, toIncidentResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": out})
}

func (h *Handler) handleIncidentDetail(w http.ResponseWriter, r *http.Request) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	incidentID := chi.URLParam(r, "incidentID")
	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()
	rec, err := h.Repo.GetIncident(ctx, org, incidentID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "incident not found"})
		return
	}
	events, err := h.Repo.ListIncidentEvents(ctx, org, incidentID, 200)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to list incident events"})
		return
	}
	evOut := make([]incidentEventResponse, 0, len(events))
	for _, ev := range events {
		evOut = append(evOut, toIncidentEventResponse(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"incident": toIncidentResponse(rec), "events": evOut})
}

func (h *Handler) handleIncidentAck(w http.ResponseWriter, r *http.Request) {
	h.userTransition(w, r, incident.ActionAck)
}

func (h *Handler) handleIncidentResolve(w http.ResponseWriter, r *http.Request) {
	h.userTransition(w, r, incident.ActionResolve)
}

func (h *Handler) handleIncidentClose(w http.ResponseWriter, r *http.Request) {
	h.userTransition(w, r, incident.ActionClose)
}

// userTransition drives the human acknowledgment ladder
// open -> ack -> resolved -> closed, appending one audit event per step.
func (h *Handler) userTransition(w http.ResponseWriter, r *http.Request, action incident.Action) {
	org, ok := requireOrg(w, r)
	if !ok {
		return
	}
	incidentID := chi.URLParam(r, "incidentID")
	actor := userID(r)
	now := utcNow()

	ctx, cancel := context.WithTimeout(r.Context(), h.Timeout)
	defer cancel()

	var updated storage.IncidentRecord
	err := h.Repo.InMonitorTx(ctx, func(tx *storage.TxRepository) error {
		rec, err := tx.GetIncident(ctx, org, incidentID)
		if err != nil {
			return err
		}
		prevState := rec.State
		prevSev := rec.Severity
		state := incident.State(rec.State)

		switch action {
		case incident.ActionAck:
			if !incident.CanAck(state) {
				return fmt.Errorf("%w: only open incidents can be acknowledged", errInvalidState)
			}
			rec.State = string(incident.StateAck)
			rec.AcknowledgedAt = &now
			rec.AcknowledgedBy = actor
		case incident.ActionResolve:
			if !incident.CanResolve(state) {
				return fmt.Errorf("%w: only acknowledged incidents can be resolved", errInvalidState)
			}
			rec.State = string(incident.StateResolved)
			rec.ResolvedAt = &now
		case incident.ActionClose:
			if !incident.CanClose(state) {
				return fmt.Errorf("%w: only acknowledged or resolved incidents can be closed", errInvalidState)
			}
			rec.State = string(incident.StateClosed)
			rec.ClosedAt = &now
		default:
			return fmt.Errorf("unsupported user action %q", action)
		}

		if err := tx.UpdateIncident(ctx, rec); err != nil {
			return err
		}
		value := rec.Value
		newSev := rec.Severity
		if err := tx.InsertIncidentEvent(ctx, storage.IncidentEventRecord{
			EventID:      uuid.NewString(),
			IncidentID:   rec.IncidentID,
			OrgID:        rec.OrgID,
			ModelID:      rec.ModelID,
			Metric:       rec.Metric,
			TS:           now,
			Action:       string(action),
			PrevState:    prevState,
			NewState:     rec.State,
			PrevSeverity: &prevSev,
			NewSeverity:  &newSev,
			Value:        &value,
			Actor:        string(incident.ActorUser),
			ActorUserID:  actor,
		}); err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "message": "incident not found"})
		case errors.Is(err, errInvalidState):
			writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "message": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "message": "failed to update incident"})
		}
		return
	}

	if action == incident.ActionResolve || action == incident.ActionClose {
		h.notifyIncident(r.Context(), updated, action)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// notifyIncident best-effort confirms user resolve/close to the org's webhook.
func (h *Handler) notifyIncident(ctx context.Context, rec storage.IncidentRecord, action incident.Action) {
	if h.Notifier == nil {
		return
	}
	route, err := h.Repo.GetAlertRoute(ctx, rec.OrgID)
	if err != nil || !route.Enabled {
		return
	}
	verb := "RESOLVED"
	if action == incident.ActionClose {
		verb = "CLOSED"
	}
	text := fmt.Sprintf(
		"✅ SentryML incident %s\nModel: `%s`\nSeverity: %s\nPSI: %.4f\nIncident: %s/incidents/%s",
		verb, rec.ModelID, rec.Severity, rec.Value, h.UIBaseURL, rec.IncidentID)
	if err := h.Notifier.Send(ctx, route.WebhookURL, text); err != nil && h.Logger != nil {
		h.Logger.Error("incident notification failed",
			slog.String("incident", rec.IncidentID),
			slog.String("error", err.Error()))
	}
}
