package incident

import "fmt"

// MetricPSI is the only drift metric tracked today.
const MetricPSI = "psi_score"

// Severity is the drift severity axis tracked per monitor.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityWarn     Severity = "WARN"
	SeverityCritical Severity = "CRITICAL"
)

// State is the human acknowledgment workflow layered on top of severity.
type State string

const (
	StateOpen     State = "open"
	StateAck      State = "ack"
	StateResolved State = "resolved"
	StateClosed   State = "closed"
)

type Action string

const (
	ActionNoop      Action = "noop"
	ActionOpen      Action = "open"
	ActionUpdate    Action = "update"
	ActionEscalate  Action = "escalate"
	ActionDowngrade Action = "downgrade"
	ActionResolve   Action = "resolve"
	ActionAck       Action = "ack"
	ActionClose     Action = "close"
)

type Actor string

const (
	ActorWorker Actor = "worker"
	ActorUser   Actor = "user"
)

// ParseSeverity validates a persisted severity string. An unknown value means
// the stored row is corrupt, not that the monitor is healthy.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityNone, SeverityWarn, SeverityCritical:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("invalid severity %q", s)
	}
}

// SeverityForPSI classifies a PSI score against monitor thresholds.
// Callers must normalize thresholds so warn <= critical.
func SeverityForPSI(psi, warn, critical float64) Severity {
	if psi >= critical {
		return SeverityCritical
	}
	if psi >= warn {
		return SeverityWarn
	}
	return SeverityNone
}

// Transition decides the next severity and action for a monitor given the
// severity of its open incident (SeverityNone when there is none) and the
// newly classified severity. The table is total over the 3x3 domain; anything
// outside it is a defect in persisted state and is reported as an error.
func Transition(current, next Severity) (Severity, Action, error) {
	switch current {
	case SeverityNone:
		switch next {
		case SeverityNone:
			return SeverityNone, ActionNoop, nil
		case SeverityWarn:
			return SeverityWarn, ActionOpen, nil
		case SeverityCritical:
			return SeverityCritical, ActionOpen, nil
		}
	case SeverityWarn:
		switch next {
		case SeverityNone:
			return SeverityNone, ActionResolve, nil
		case SeverityWarn:
			return SeverityWarn, ActionUpdate, nil
		case SeverityCritical:
			return SeverityCritical, ActionEscalate, nil
		}
	case SeverityCritical:
		switch next {
		case SeverityNone:
			return SeverityNone, ActionResolve, nil
		case SeverityWarn:
			return SeverityWarn, ActionDowngrade, nil
		case SeverityCritical:
			return SeverityCritical, ActionUpdate, nil
		}
	}
	return "", "", fmt.Errorf("invalid transition %q -> %q", current, next)
}

// Notifies reports whether the action triggers an outbound notification.
func (a Action) Notifies() bool {
	switch a {
	case ActionOpen, ActionEscalate, ActionResolve:
		return true
	default:
		return false
	}
}

// CanAck, CanResolve and CanClose guard the user-driven workflow: an incident
// moves open -> ack -> resolved -> closed, with close allowed from ack too.
func CanAck(s State) bool     { return s == StateOpen }
func CanResolve(s State) bool { return s == StateAck }
func CanClose(s State) bool   { return s == StateAck || s == StateResolved }
