package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"sentryml/internal/config"
	"sentryml/internal/drift"
	"sentryml/internal/incident"
	"sentryml/internal/metrics"
	"sentryml/internal/storage"
)

// valueChangeTolerance bounds what counts as a material PSI change; smaller
// deltas on an unchanged severity produce no audit event.
const valueChangeTolerance = 1e-6

type Runner struct {
	Store    Store
	Notifier Notifier
	Logger   *slog.Logger
	Config   config.WorkerConfig
	Now      func() time.Time
}

func NewRunner(store Store, notifier Notifier, cfg config.WorkerConfig, logger *slog.Logger) *Runner {
	return &Runner{Store: store, Notifier: notifier, Config: cfg, Logger: logger}
}

type RunSummary struct {
	Evaluated int
	Skipped   int
	Failed    int
	Notified  int
}

type monitorOutcome struct {
	skipped    bool
	action     incident.Action
	severity   incident.Severity
	psi        float64
	incidentID string
	windows    Windows
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return UTCNow()
}

// RunOnce evaluates every enabled monitor. A monitor-level failure is logged
// and does not abort the remaining monitors; only an unusable store fails the
// whole run. Notifications go out after each monitor's state has committed.
func (r *Runner) RunOnce(ctx context.Context) (RunSummary, error) {
	started := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(started).Seconds())
	}()

	summary := RunSummary{}
	now := r.now()

	routes, err := r.Store.ListEnabledAlertRoutes(ctx)
	if err != nil {
		return summary, fmt.Errorf("list alert routes: %w", err)
	}
	routeMap := make(map[string]storage.AlertRouteRecord, len(routes))
	for _, route := range routes {
		routeMap[route.OrgID] = route
	}

	monitors, err := r.Store.ListEnabledMonitors(ctx)
	if err != nil {
		return summary, fmt.Errorf("list monitors: %w", err)
	}

	for _, m := range monitors {
		outcome, err := r.evaluateMonitor(ctx, m, now)
		if err != nil {
			summary.Failed++
			metrics.MonitorsFailed.Inc()
			r.Logger.Error("monitor evaluation failed",
				slog.String("org", m.OrgID),
				slog.String("model", m.ModelID),
				slog.String("error", err.Error()))
			continue
		}
		if outcome.skipped {
			summary.Skipped++
			metrics.MonitorsSkipped.Inc()
			continue
		}
		summary.Evaluated++
		metrics.MonitorsEvaluated.Inc()
		switch outcome.action {
		case incident.ActionOpen:
			metrics.IncidentsOpened.Inc()
		case incident.ActionResolve:
			metrics.IncidentsResolved.Inc()
		}

		if !outcome.action.Notifies() {
			continue
		}
		route, ok := routeMap[m.OrgID]
		if !ok {
			continue
		}
		text := FormatMessage(outcome.action, m.ModelID, outcome.severity, outcome.psi,
			outcome.windows, outcome.incidentID, r.Config.UIBaseURL, now)
		notifyCtx, cancel := context.WithTimeout(ctx, r.Config.NotifyTimeout())
		err = r.Notifier.Send(notifyCtx, route.WebhookURL, text)
		cancel()
		if err != nil {
			// Incident state is already committed; a webhook outage must not
			// re-open the question of what happened.
			metrics.NotifyFailures.Inc()
			r.Logger.Error("notification delivery failed",
				slog.String("org", m.OrgID),
				slog.String("model", m.ModelID),
				slog.String("action", string(outcome.action)),
				slog.String("error", err.Error()))
			continue
		}
		summary.Notified++
	}
	return summary, nil
}

func (r *Runner) evaluateMonitor(ctx context.Context, m storage.MonitorRecord, now time.Time) (monitorOutcome, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Config.MonitorTimeout())
	defer cancel()

	w := ComputeWindows(now, m.BaselineDays, m.CurrentDays)

	baselineRaw, err := r.Store.FetchScores(ctx, m.OrgID, m.ModelID, w.BaselineStart, w.BaselineEnd)
	if err != nil {
		return monitorOutcome{}, fmt.Errorf("fetch baseline scores: %w", err)
	}
	currentRaw, err := r.Store.FetchScores(ctx, m.OrgID, m.ModelID, w.CurrentStart, w.CurrentEnd)
	if err != nil {
		return monitorOutcome{}, fmt.Errorf("fetch current scores: %w", err)
	}

	baseline, current := EligibleForMonitoring(baselineRaw, currentRaw, m.MinSamples)
	if len(baseline) == 0 || len(current) == 0 {
		return monitorOutcome{skipped: true}, nil
	}

	psi, err := drift.PSI(baseline, current, m.NumBins)
	if err != nil {
		return monitorOutcome{}, fmt.Errorf("compute psi: %w", err)
	}
	warn, critical := NormalizeThresholds(m.WarnThreshold, m.CriticalThreshold)
	newSeverity := incident.SeverityForPSI(psi, warn, critical)

	outcome := monitorOutcome{severity: newSeverity, psi: psi, windows: w}

	err = r.Store.InMonitorTx(ctx, func(tx MonitorTx) error {
		open, err := tx.FindOpenIncident(ctx, m.OrgID, m.ModelID, incident.MetricPSI)
		hasOpen := true
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("find open incident: %w", err)
			}
			hasOpen = false
		}

		currentSeverity := incident.SeverityNone
		if hasOpen {
			currentSeverity, err = incident.ParseSeverity(open.Severity)
			if err != nil {
				return fmt.Errorf("incident %s: %w", open.IncidentID, err)
			}
		}

		nextSeverity, action, err := incident.Transition(currentSeverity, newSeverity)
		if err != nil {
			return err
		}
		outcome.action = action

		driftID := uuid.NewString()
		if err := tx.InsertDriftResult(ctx, storage.DriftResultRecord{
			DriftID:       driftID,
			OrgID:         m.OrgID,
			ModelID:       m.ModelID,
			ComputedAt:    now,
			BaselineStart: w.BaselineStart,
			BaselineEnd:   w.BaselineEnd,
			CurrentStart:  w.CurrentStart,
			CurrentEnd:    w.CurrentEnd,
			PSIScore:      psi,
			BaselineN:     len(baseline),
			CurrentN:      len(current),
		}); err != nil {
			return fmt.Errorf("insert drift result: %w", err)
		}

		switch action {
		case incident.ActionNoop:
			return nil

		case incident.ActionOpen:
			rec := storage.IncidentRecord{
				IncidentID: uuid.NewString(),
				OrgID:      m.OrgID,
				ModelID:    m.ModelID,
				Metric:     incident.MetricPSI,
				State:      string(incident.StateOpen),
				Severity:   string(nextSeverity),
				Value:      psi,
				OpenedAt:   now,
				DriftID:    &driftID,
			}
			if err := tx.InsertIncident(ctx, rec); err != nil {
				return fmt.Errorf("insert incident: %w", err)
			}
			outcome.incidentID = rec.IncidentID
			prevSev := string(incident.SeverityNone)
			newSev := rec.Severity
			return tx.InsertIncidentEvent(ctx, storage.IncidentEventRecord{
				EventID:      uuid.NewString(),
				IncidentID:   rec.IncidentID,
				OrgID:        m.OrgID,
				ModelID:      m.ModelID,
				Metric:       incident.MetricPSI,
				TS:           now,
				Action:       string(action),
				PrevState:    "none",
				NewState:     rec.State,
				PrevSeverity: &prevSev,
				NewSeverity:  &newSev,
				Value:        &psi,
				Actor:        string(incident.ActorWorker),
			})

		case incident.ActionUpdate, incident.ActionEscalate, incident.ActionDowngrade:
			prevSev := open.Severity
			prevValue := open.Value
			open.Severity = string(nextSeverity)
			open.Value = psi
			open.DriftID = &driftID
			if err := tx.UpdateIncident(ctx, open); err != nil {
				return fmt.Errorf("update incident: %w", err)
			}
			outcome.incidentID = open.IncidentID
			changed := prevSev != string(nextSeverity) || math.Abs(prevValue-psi) > valueChangeTolerance
			if !changed {
				return nil
			}
			newSev := open.Severity
			return tx.InsertIncidentEvent(ctx, storage.IncidentEventRecord{
				EventID:      uuid.NewString(),
				IncidentID:   open.IncidentID,
				OrgID:        m.OrgID,
				ModelID:      m.ModelID,
				Metric:       incident.MetricPSI,
				TS:           now,
				Action:       string(action),
				PrevState:    open.State,
				NewState:     open.State,
				PrevSeverity: &prevSev,
				NewSeverity:  &newSev,
				Value:        &psi,
				Actor:        string(incident.ActorWorker),
			})

		case incident.ActionResolve:
			prevState := open.State
			prevSev := open.Severity
			resolvedAt := now
			closedAt := now
			// Worker-driven resolution closes immediately; the ACK/RESOLVED
			// ladder is reserved for the user-driven flow.
			open.State = string(incident.StateClosed)
			open.ResolvedAt = &resolvedAt
			open.ClosedAt = &closedAt
			if err := tx.UpdateIncident(ctx, open); err != nil {
				return fmt.Errorf("update incident: %w", err)
			}
			outcome.incidentID = open.IncidentID
			newSev := open.Severity
			return tx.InsertIncidentEvent(ctx, storage.IncidentEventRecord{
				EventID:      uuid.NewString(),
				IncidentID:   open.IncidentID,
				OrgID:        m.OrgID,
				ModelID:      m.ModelID,
				Metric:       incident.MetricPSI,
				TS:           now,
				Action:       string(action),
				PrevState:    prevState,
				NewState:     open.State,
				PrevSeverity: &prevSev,
				NewSeverity:  &newSev,
				Value:        &psi,
				Actor:        string(incident.ActorWorker),
			})
		}
		return fmt.Errorf("unhandled action %q", action)
	})
	if err != nil {
		return monitorOutcome{}, err
	}
	return outcome, nil
}
