package storage

import "time"

// MonitorRecord is the per (org, model) drift monitoring configuration.
// The worker reads it once per evaluation and never writes it.
type MonitorRecord struct {
	MonitorID         string
	OrgID             string
	ModelID           string
	Enabled           bool
	BaselineDays      int
	CurrentDays       int
	NumBins           int
	MinSamples        int
	WarnThreshold     float64
	CriticalThreshold float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DriftResultRecord is one immutable PSI computation. Append-only.
type DriftResultRecord struct {
	DriftID       string
	OrgID         string
	ModelID       string
	ComputedAt    time.Time
	BaselineStart time.Time
	BaselineEnd   time.Time
	CurrentStart  time.Time
	CurrentEnd    time.Time
	PSIScore      float64
	BaselineN     int
	CurrentN      int
}

// IncidentRecord is the mutable drift incident. At most one row per
// (org, model, metric) may have closed_at unset.
type IncidentRecord struct {
	IncidentID     string
	OrgID          string
	ModelID        string
	Metric         string
	State          string
	Severity       string
	Value          float64
	OpenedAt       time.Time
	AcknowledgedAt *time.Time
	ResolvedAt     *time.Time
	ClosedAt       *time.Time
	AcknowledgedBy *string
	DriftID        *string
}

// IncidentEventRecord is the append-only audit trail of incident transitions.
type IncidentEventRecord struct {
	EventID      string
	IncidentID   string
	OrgID        string
	ModelID      string
	Metric       string
	TS           time.Time
	Action       string
	PrevState    string
	NewState     string
	PrevSeverity *string
	NewSeverity  *string
	Value        *float64
	Actor        string
	ActorUserID  *string
}

// AlertRouteRecord is the per-org notification target. One route per org.
type AlertRouteRecord struct {
	RouteID    string
	OrgID      string
	Kind       string
	WebhookURL string
	Enabled    bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
