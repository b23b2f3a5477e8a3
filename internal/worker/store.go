package worker

import (
	"context"
	"time"

	"sentryml/internal/storage"
)

// Store is the storage port consumed by the runner. *storage.Repository backs
// it in production; tests substitute an in-memory double.
type Store interface {
	ListEnabledAlertRoutes(ctx context.Context) ([]storage.AlertRouteRecord, error)
	ListEnabledMonitors(ctx context.Context) ([]storage.MonitorRecord, error)
	FetchScores(ctx context.Context, orgID, modelID string, start, end time.Time) ([]*float64, error)
	InMonitorTx(ctx context.Context, fn func(tx MonitorTx) error) error
}

// MonitorTx covers the writes of one monitor evaluation. Everything done
// through it commits atomically or not at all.
type MonitorTx interface {
	FindOpenIncident(ctx context.Context, orgID, modelID, metric string) (storage.IncidentRecord, error)
	InsertDriftResult(ctx context.Context, rec storage.DriftResultRecord) error
	InsertIncident(ctx context.Context, rec storage.IncidentRecord) error
	UpdateIncident(ctx context.Context, rec storage.IncidentRecord) error
	InsertIncidentEvent(ctx context.Context, rec storage.IncidentEventRecord) error
}

// Notifier is the outbound notification port.
type Notifier interface {
	Send(ctx context.Context, webhookURL, text string) error
}

// SQLStore adapts *storage.Repository to the Store port.
type SQLStore struct {
	Repo *storage.Repository
}

func (s SQLStore) ListEnabledAlertRoutes(ctx context.Context) ([]storage.AlertRouteRecord, error) {
	return s.Repo.ListEnabledAlertRoutes(ctx)
}

func (s SQLStore) ListEnabledMonitors(ctx context.Context) ([]storage.MonitorRecord, error) {
	return s.Repo.ListEnabledMonitors(ctx)
}

func (s SQLStore) FetchScores(ctx context.Context, orgID, modelID string, start, end time.Time) ([]*float64, error) {
	return s.Repo.FetchScores(ctx, orgID, modelID, start, end)
}

func (s SQLStore) InMonitorTx(ctx context.Context, fn func(tx MonitorTx) error) error {
	return s.Repo.InMonitorTx(ctx, func(tx *storage.TxRepository) error {
		return fn(tx)
	})
}
