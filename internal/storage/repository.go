package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

// TxRepository scopes incident and drift writes to one transaction so a
// monitor's DriftResult and incident mutation commit atomically.
type TxRepository struct {
	tx pgx.Tx
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// InMonitorTx runs fn inside a transaction and commits only when fn returns nil.
func (r *Repository) InMonitorTx(ctx context.Context, fn func(tx *TxRepository) error) error {
	tx, err := r.Store.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&TxRepository{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) ListEnabledAlertRoutes(ctx context.Context) ([]AlertRouteRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT route_id, org_id, kind, webhook_url, is_enabled, created_at, updated_at
		FROM alert_routes WHERE is_enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []AlertRouteRecord{}
	for rows.Next() {
		var rec AlertRouteRecord
		if err := rows.Scan(&rec.RouteID, &rec.OrgID, &rec.Kind, &rec.WebhookURL, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetAlertRoute(ctx context.Context, orgID string) (AlertRouteRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT route_id, org_id, kind, webhook_url, is_enabled, created_at, updated_at
		FROM alert_routes WHERE org_id=$1`, orgID)
	var rec AlertRouteRecord
	if err := row.Scan(&rec.RouteID, &rec.OrgID, &rec.Kind, &rec.WebhookURL, &rec.Enabled, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return AlertRouteRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) UpsertAlertRoute(ctx context.Context, rec AlertRouteRecord) (string, error) {
	id := uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO alert_routes (route_id, org_id, kind, webhook_url, is_enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,now(),now())
		ON CONFLICT (org_id) DO UPDATE
		SET webhook_url=EXCLUDED.webhook_url, is_enabled=EXCLUDED.is_enabled, updated_at=now()
		RETURNING route_id`,
		id, rec.OrgID, rec.Kind, rec.WebhookURL, rec.Enabled)
	var routeID string
	if err := row.Scan(&routeID); err != nil {
		return "", err
	}
	return routeID, nil
}

const monitorColumns = `monitor_id, org_id, model_id, is_enabled, baseline_days, current_days,
		num_bins, min_samples, warn_threshold, critical_threshold, created_at, updated_at`

func scanMonitor(row pgx.Row) (MonitorRecord, error) {
	var rec MonitorRecord
	err := row.Scan(&rec.MonitorID, &rec.OrgID, &rec.ModelID, &rec.Enabled, &rec.BaselineDays,
		&rec.CurrentDays, &rec.NumBins, &rec.MinSamples, &rec.WarnThreshold, &rec.CriticalThreshold,
		&rec.CreatedAt, &rec.UpdatedAt)
	return rec, err
}

func (r *Repository) ListEnabledMonitors(ctx context.Context) ([]MonitorRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs WHERE is_enabled = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []MonitorRecord{}
	for rows.Next() {
		rec, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) ListMonitors(ctx context.Context, orgID string) ([]MonitorRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs WHERE org_id=$1 ORDER BY model_id`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []MonitorRecord{}
	for rows.Next() {
		rec, err := scanMonitor(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) GetMonitorByModel(ctx context.Context, orgID, modelID string) (MonitorRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+monitorColumns+` FROM monitor_configs WHERE org_id=$1 AND model_id=$2`, orgID, modelID)
	rec, err := scanMonitor(row)
	if err != nil {
		return MonitorRecord{}, ErrNotFound
	}
	return rec, nil
}

func (r *Repository) UpsertMonitor(ctx context.Context, rec MonitorRecord) (string, error) {
	id := uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO monitor_configs (monitor_id, org_id, model_id, is_enabled, baseline_days,
			current_days, num_bins, min_samples, warn_threshold, critical_threshold, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		ON CONFLICT (org_id, model_id) DO UPDATE
		SET is_enabled=EXCLUDED.is_enabled, baseline_days=EXCLUDED.baseline_days,
			current_days=EXCLUDED.current_days, num_bins=EXCLUDED.num_bins,
			min_samples=EXCLUDED.min_samples, warn_threshold=EXCLUDED.warn_threshold,
			critical_threshold=EXCLUDED.critical_threshold, updated_at=now()
		RETURNING monitor_id`,
		id, rec.OrgID, rec.ModelID, rec.Enabled, rec.BaselineDays, rec.CurrentDays,
		rec.NumBins, rec.MinSamples, rec.WarnThreshold, rec.CriticalThreshold)
	var monitorID string
	if err := row.Scan(&monitorID); err != nil {
		return "", err
	}
	return monitorID, nil
}

// FetchScores returns the prediction scores for [start, end). Nullable scores
// come back as nil entries; callers filter them before any numeric use.
func (r *Repository) FetchScores(ctx context.Context, orgID, modelID string, start, end time.Time) ([]*float64, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT score FROM prediction_events
		WHERE org_id=$1 AND model_id=$2 AND event_time >= $3 AND event_time < $4`,
		orgID, modelID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	scores := []*float64{}
	for rows.Next() {
		var score *float64
		if err := rows.Scan(&score); err != nil {
			return nil, err
		}
		scores = append(scores, score)
	}
	return scores, rows.Err()
}

const incidentColumns = `incident_id, org_id, model_id, metric, state, severity, value,
		opened_at, acknowledged_at, resolved_at, closed_at, acknowledged_by_user_id, drift_id`

func (r *Repository) GetIncident(ctx context.Context, orgID, incidentID string) (IncidentRecord, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents WHERE org_id=$1 AND incident_id=$2`,
		orgID, incidentID)
	rec, err := scanIncident(row)
	if err != nil {
		return IncidentRecord{}, ErrNotFound
	}
	return rec, nil
}

func scanIncident(row pgx.Row) (IncidentRecord, error) {
	var rec IncidentRecord
	err := row.Scan(&rec.IncidentID, &rec.OrgID, &rec.ModelID, &rec.Metric, &rec.State,
		&rec.Severity, &rec.Value, &rec.OpenedAt, &rec.AcknowledgedAt, &rec.ResolvedAt,
		&rec.ClosedAt, &rec.AcknowledgedBy, &rec.DriftID)
	return rec, err
}

func (r *Repository) ListIncidents(ctx context.Context, orgID string, openOnly bool, limit int) ([]IncidentRecord, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE org_id=$1`
	if openOnly {
		query += ` AND closed_at IS NULL`
	}
	query += ` ORDER BY opened_at DESC LIMIT $2`
	rows, err := r.Store.Pool.Query(ctx, query, orgID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []IncidentRecord{}
	for rows.Next() {
		rec, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

func (r *Repository) ListIncidentEvents(ctx context.Context, orgID, incidentID string, limit int) ([]IncidentEventRecord, error) {
	rows, err := r.Store.Pool.Query(ctx, `
		SELECT event_id, incident_id, org_id, model_id, metric, ts, action, prev_state, new_state,
			prev_severity, new_severity, value, actor, actor_user_id
		FROM incident_events WHERE org_id=$1 AND incident_id=$2 ORDER BY ts ASC LIMIT $3`,
		orgID, incidentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []IncidentEventRecord{}
	for rows.Next() {
		var rec IncidentEventRecord
		if err := rows.Scan(&rec.EventID, &rec.IncidentID, &rec.OrgID, &rec.ModelID, &rec.Metric,
			&rec.TS, &rec.Action, &rec.PrevState, &rec.NewState, &rec.PrevSeverity, &rec.NewSeverity,
			&rec.Value, &rec.Actor, &rec.ActorUserID); err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}

// FindOpenIncident returns the non-closed incident for (org, model, metric),
// or ErrNotFound. The at-most-one invariant makes LIMIT 1 safe.
func (t *TxRepository) FindOpenIncident(ctx context.Context, orgID, modelID, metric string) (IncidentRecord, error) {
	return findOpenIncident(ctx, t.tx, orgID, modelID, metric)
}

func findOpenIncident(ctx context.Context, q querier, orgID, modelID, metric string) (IncidentRecord, error) {
	row := q.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE org_id=$1 AND model_id=$2 AND metric=$3 AND closed_at IS NULL
		ORDER BY opened_at DESC LIMIT 1
		FOR UPDATE`,
		orgID, modelID, metric)
	rec, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IncidentRecord{}, ErrNotFound
		}
		return IncidentRecord{}, err
	}
	return rec, nil
}

func (t *TxRepository) GetIncident(ctx context.Context, orgID, incidentID string) (IncidentRecord, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+incidentColumns+` FROM incidents
		WHERE org_id=$1 AND incident_id=$2 FOR UPDATE`, orgID, incidentID)
	rec, err := scanIncident(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IncidentRecord{}, ErrNotFound
		}
		return IncidentRecord{}, err
	}
	return rec, nil
}

func (t *TxRepository) InsertDriftResult(ctx context.Context, rec DriftResultRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO drift_results (drift_id, org_id, model_id, computed_at, baseline_start,
			baseline_end, current_start, current_end, psi_score, baseline_n, current_n)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		rec.DriftID, rec.OrgID, rec.ModelID, rec.ComputedAt, rec.BaselineStart, rec.BaselineEnd,
		rec.CurrentStart, rec.CurrentEnd, rec.PSIScore, rec.BaselineN, rec.CurrentN)
	return err
}

func (t *TxRepository) InsertIncident(ctx context.Context, rec IncidentRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO incidents (incident_id, org_id, model_id, metric, state, severity, value,
			opened_at, acknowledged_at, resolved_at, closed_at, acknowledged_by_user_id, drift_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		rec.IncidentID, rec.OrgID, rec.ModelID, rec.Metric, rec.State, rec.Severity, rec.Value,
		rec.OpenedAt, rec.AcknowledgedAt, rec.ResolvedAt, rec.ClosedAt, rec.AcknowledgedBy, rec.DriftID)
	return err
}

func (t *TxRepository) UpdateIncident(ctx context.Context, rec IncidentRecord) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE incidents
		SET state=$1, severity=$2, value=$3, acknowledged_at=$4, resolved_at=$5, closed_at=$6,
			acknowledged_by_user_id=$7, drift_id=$8
		WHERE incident_id=$9`,
		rec.State, rec.Severity, rec.Value, rec.AcknowledgedAt, rec.ResolvedAt, rec.ClosedAt,
		rec.AcknowledgedBy, rec.DriftID, rec.IncidentID)
	return err
}

func (t *TxRepository) InsertIncidentEvent(ctx context.Context, rec IncidentEventRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO incident_events (event_id, incident_id, org_id, model_id, metric, ts, action,
			prev_state, new_state, prev_severity, new_severity, value, actor, actor_user_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		rec.EventID, rec.IncidentID, rec.OrgID, rec.ModelID, rec.Metric, rec.TS, rec.Action,
		rec.PrevState, rec.NewState, rec.PrevSeverity, rec.NewSeverity, rec.Value, rec.Actor, rec.ActorUserID)
	return err
}
