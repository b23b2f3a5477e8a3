package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"sentryml/internal/config"
	"sentryml/internal/incident"
	"sentryml/internal/storage"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	now            time.Time
	routes         []storage.AlertRouteRecord
	monitors       []storage.MonitorRecord
	baselineScores map[string][]*float64
	currentScores  map[string][]*float64
	incidents      []storage.IncidentRecord
	driftResults   []storage.DriftResultRecord
	events         []storage.IncidentEventRecord
	listErr        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:            testNow,
		baselineScores: map[string][]*float64{},
		currentScores:  map[string][]*float64{},
	}
}

func key(orgID, modelID string) string { return orgID + "|" + modelID }

func (f *fakeStore) ListEnabledAlertRoutes(ctx context.Context) ([]storage.AlertRouteRecord, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.routes, nil
}

func (f *fakeStore) ListEnabledMonitors(ctx context.Context) ([]storage.MonitorRecord, error) {
	return f.monitors, nil
}

func (f *fakeStore) FetchScores(ctx context.Context, orgID, modelID string, start, end time.Time) ([]*float64, error) {
	if end.Equal(f.now) {
		return f.currentScores[key(orgID, modelID)], nil
	}
	return f.baselineScores[key(orgID, modelID)], nil
}

func (f *fakeStore) InMonitorTx(ctx context.Context, fn func(tx MonitorTx) error) error {
	incidents := append([]storage.IncidentRecord{}, f.incidents...)
	drifts := append([]storage.DriftResultRecord{}, f.driftResults...)
	events := append([]storage.IncidentEventRecord{}, f.events...)
	if err := fn(f); err != nil {
		f.incidents = incidents
		f.driftResults = drifts
		f.events = events
		return err
	}
	return nil
}

func (f *fakeStore) FindOpenIncident(ctx context.Context, orgID, modelID, metric string) (storage.IncidentRecord, error) {
	for _, rec := range f.incidents {
		if rec.OrgID == orgID && rec.ModelID == modelID && rec.Metric == metric && rec.ClosedAt == nil {
			return rec, nil
		}
	}
	return storage.IncidentRecord{}, storage.ErrNotFound
}

func (f *fakeStore) InsertDriftResult(ctx context.Context, rec storage.DriftResultRecord) error {
	f.driftResults = append(f.driftResults, rec)
	return nil
}

func (f *fakeStore) InsertIncident(ctx context.Context, rec storage.IncidentRecord) error {
	f.incidents = append(f.incidents, rec)
	return nil
}

func (f *fakeStore) UpdateIncident(ctx context.Context, rec storage.IncidentRecord) error {
	for i := range f.incidents {
		if f.incidents[i].IncidentID == rec.IncidentID {
			f.incidents[i] = rec
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) InsertIncidentEvent(ctx context.Context, rec storage.IncidentEventRecord) error {
	f.events = append(f.events, rec)
	return nil
}

func (f *fakeStore) openIncidents(orgID, modelID string) []storage.IncidentRecord {
	open := []storage.IncidentRecord{}
	for _, rec := range f.incidents {
		if rec.OrgID == orgID && rec.ModelID == modelID && rec.ClosedAt == nil {
			open = append(open, rec)
		}
	}
	return open
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, webhookURL, text string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, text)
	return nil
}

func ptrs(values ...float64) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out
}

func testMonitor() storage.MonitorRecord {
	return storage.MonitorRecord{
		MonitorID:         "mon-1",
		OrgID:             "org-1",
		ModelID:           "churn-model",
		Enabled:           true,
		BaselineDays:      7,
		CurrentDays:       1,
		NumBins:           2,
		MinSamples:        2,
		WarnThreshold:     0.1,
		CriticalThreshold: 0.2,
	}
}

func newTestRunner(store *fakeStore, notifier *fakeNotifier) *Runner {
	runner := NewRunner(store, notifier, config.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	runner.Now = func() time.Time { return testNow }
	return runner
}

func TestRunOpensCriticalIncident(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	store.monitors = []storage.MonitorRecord{m}
	store.routes = []storage.AlertRouteRecord{{RouteID: "r1", OrgID: m.OrgID, Kind: "slack", WebhookURL: "http://hooks.example/x", Enabled: true}}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	notifier := &fakeNotifier{}

	summary, err := newTestRunner(store, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Evaluated != 1 || summary.Notified != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(store.driftResults) != 1 {
		t.Fatalf("expected 1 drift result, got %d", len(store.driftResults))
	}
	if store.driftResults[0].PSIScore <= 1.0 {
		t.Fatalf("expected large PSI, got %v", store.driftResults[0].PSIScore)
	}
	open := store.openIncidents(m.OrgID, m.ModelID)
	if len(open) != 1 {
		t.Fatalf("expected exactly one open incident, got %d", len(open))
	}
	if open[0].Severity != string(incident.SeverityCritical) || open[0].State != string(incident.StateOpen) {
		t.Fatalf("unexpected incident %+v", open[0])
	}
	if len(store.events) != 1 || store.events[0].Action != "open" || store.events[0].PrevState != "none" {
		t.Fatalf("expected one open event, got %+v", store.events)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], m.ModelID) {
		t.Fatalf("expected notification mentioning model, got %v", notifier.sent)
	}
}

func TestRunIdempotentReRun(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	store.monitors = []storage.MonitorRecord{m}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	notifier := &fakeNotifier{}
	runner := newTestRunner(store, notifier)

	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	eventsAfterFirst := len(store.events)

	if _, err := runner.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(store.events) != eventsAfterFirst {
		t.Fatalf("unchanged re-run must append no events: had %d now %d", eventsAfterFirst, len(store.events))
	}
	if open := store.openIncidents(m.OrgID, m.ModelID); len(open) != 1 {
		t.Fatalf("expected exactly one open incident after re-run, got %d", len(open))
	}
	if len(store.driftResults) != 2 {
		t.Fatalf("every run persists a drift result, got %d", len(store.driftResults))
	}
}

func TestRunDowngradesCriticalToWarn(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	m.WarnThreshold = 0.0
	m.CriticalThreshold = 10.0
	store.monitors = []storage.MonitorRecord{m}
	driftID := "drift-prev"
	store.incidents = []storage.IncidentRecord{{
		IncidentID: "inc-1", OrgID: m.OrgID, ModelID: m.ModelID, Metric: incident.MetricPSI,
		State: string(incident.StateOpen), Severity: string(incident.SeverityCritical),
		Value: 5.0, OpenedAt: testNow.Add(-time.Hour), DriftID: &driftID,
	}}
	// identical windows give PSI ~0, which is WARN with warn=0
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.2, 0.3, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.2, 0.3, 0.4)
	notifier := &fakeNotifier{}

	if _, err := newTestRunner(store, notifier).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	open := store.openIncidents(m.OrgID, m.ModelID)
	if len(open) != 1 || open[0].Severity != string(incident.SeverityWarn) {
		t.Fatalf("expected downgraded incident, got %+v", open)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected one downgrade event, got %d", len(store.events))
	}
	ev := store.events[0]
	if ev.Action != "downgrade" || *ev.PrevSeverity != "CRITICAL" || *ev.NewSeverity != "WARN" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("downgrade must not notify, got %v", notifier.sent)
	}
}

func TestRunResolvesAndCloses(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	store.monitors = []storage.MonitorRecord{m}
	store.routes = []storage.AlertRouteRecord{{RouteID: "r1", OrgID: m.OrgID, Kind: "slack", WebhookURL: "http://hooks.example/x", Enabled: true}}
	store.incidents = []storage.IncidentRecord{{
		IncidentID: "inc-1", OrgID: m.OrgID, ModelID: m.ModelID, Metric: incident.MetricPSI,
		State: string(incident.StateOpen), Severity: string(incident.SeverityWarn),
		Value: 0.15, OpenedAt: testNow.Add(-time.Hour),
	}}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.2, 0.3, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.2, 0.3, 0.4)
	notifier := &fakeNotifier{}

	if _, err := newTestRunner(store, notifier).RunOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if open := store.openIncidents(m.OrgID, m.ModelID); len(open) != 0 {
		t.Fatalf("incident should be closed, still open: %+v", open)
	}
	closed := store.incidents[0]
	if closed.State != string(incident.StateClosed) {
		t.Fatalf("expected closed state, got %q", closed.State)
	}
	if closed.ResolvedAt == nil || closed.ClosedAt == nil {
		t.Fatalf("resolved_at and closed_at must both be set: %+v", closed)
	}
	if len(store.events) != 1 || store.events[0].Action != "resolve" {
		t.Fatalf("expected resolve event, got %+v", store.events)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("resolve must notify when route is enabled, got %d", len(notifier.sent))
	}
}

func TestRunSkipsInsufficientSamples(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	m.MinSamples = 10
	store.monitors = []storage.MonitorRecord{m}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.2)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.3)
	notifier := &fakeNotifier{}

	summary, err := newTestRunner(store, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Skipped != 1 || summary.Evaluated != 0 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(store.driftResults) != 0 || len(store.incidents) != 0 || len(store.events) != 0 {
		t.Fatalf("skip must write nothing")
	}
}

func TestRunNotifyFailureDoesNotFailRun(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	store.monitors = []storage.MonitorRecord{m}
	store.routes = []storage.AlertRouteRecord{{RouteID: "r1", OrgID: m.OrgID, Kind: "slack", WebhookURL: "http://hooks.example/x", Enabled: true}}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	notifier := &fakeNotifier{err: errors.New("webhook down")}

	summary, err := newTestRunner(store, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 0 || summary.Evaluated != 1 || summary.Notified != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	// committed state survives the delivery failure
	if len(store.openIncidents(m.OrgID, m.ModelID)) != 1 || len(store.events) != 1 {
		t.Fatalf("incident state must stay committed after notify failure")
	}
}

func TestRunCorruptSeverityFailsMonitorOnly(t *testing.T) {
	store := newFakeStore()
	bad := testMonitor()
	good := testMonitor()
	good.MonitorID = "mon-2"
	good.ModelID = "fraud-model"
	store.monitors = []storage.MonitorRecord{bad, good}
	store.incidents = []storage.IncidentRecord{{
		IncidentID: "inc-bad", OrgID: bad.OrgID, ModelID: bad.ModelID, Metric: incident.MetricPSI,
		State: string(incident.StateOpen), Severity: "SEVERE", Value: 1, OpenedAt: testNow.Add(-time.Hour),
	}}
	for _, m := range store.monitors {
		store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4)
		store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	}
	notifier := &fakeNotifier{}

	summary, err := newTestRunner(store, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Failed != 1 || summary.Evaluated != 1 {
		t.Fatalf("corrupt severity must fail only its monitor: %+v", summary)
	}
	if len(store.openIncidents(good.OrgID, good.ModelID)) != 1 {
		t.Fatalf("healthy monitor must still open its incident")
	}
}

func TestRunWithoutRouteSkipsNotification(t *testing.T) {
	store := newFakeStore()
	m := testMonitor()
	store.monitors = []storage.MonitorRecord{m}
	store.baselineScores[key(m.OrgID, m.ModelID)] = ptrs(0.1, 0.1, 0.2, 0.2, 0.3, 0.3, 0.4, 0.4)
	store.currentScores[key(m.OrgID, m.ModelID)] = ptrs(0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9)
	notifier := &fakeNotifier{}

	summary, err := newTestRunner(store, notifier).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Notified != 0 || summary.Evaluated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("no route configured, nothing should be sent")
	}
}

func TestRunStoreFailureFailsRun(t *testing.T) {
	store := newFakeStore()
	store.listErr = errors.New("connection lost")
	notifier := &fakeNotifier{}
	if _, err := newTestRunner(store, notifier).RunOnce(context.Background()); err == nil {
		t.Fatalf("unusable store must fail the run")
	}
}
