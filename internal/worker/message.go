package worker

import (
	"fmt"
	"strings"
	"time"

	"sentryml/internal/incident"
)

// FormatMessage renders the human-readable notification for one incident
// action. The layout follows the product's Slack templates.
func FormatMessage(action incident.Action, modelID string, severity incident.Severity, psi float64, w Windows, incidentID, uiBaseURL string, now time.Time) string {
	severityNorm := strings.ToLower(string(severity))
	incidentLink := ""
	if incidentID != "" {
		incidentLink = fmt.Sprintf("%s/incidents/%s", uiBaseURL, incidentID)
	}

	if action == incident.ActionEscalate {
		return fmt.Sprintf(
			"🚨 Data drift severity increased\n\n"+
				"The distribution shift for %s has worsened and crossed the critical threshold.\n\n"+
				"View incident details: %s",
			modelID, incidentLink)
	}

	if action == incident.ActionResolve {
		return fmt.Sprintf(
			"✅ Data drift resolved\n\n"+
				"Incoming data for %s has returned to its baseline distribution.\n"+
				"This incident has been resolved automatically.\n\n"+
				"• Final PSI: %.2f\n"+
				"• Resolved at: %s\n\n"+
				"🔍 View incident timeline\n%s",
			modelID, psi, now.Format("Jan 02, 15:04 UTC"), incidentLink)
	}

	emoji := "⚠️"
	sevLine := "The distribution shift exceeds the warning threshold."
	if severityNorm == "critical" {
		emoji = "🚨"
		sevLine = "The distribution shift exceeds the critical threshold and may impact model behavior."
	}
	currentRange := fmt.Sprintf("%s → %s", w.CurrentStart.Format("Jan 02"), w.CurrentEnd.Format("Jan 02"))

	return fmt.Sprintf(
		"%s Data drift detected (%s)\n\n"+
			"Incoming prediction data for %s has drifted from its baseline distribution.\n"+
			"%s\n\n"+
			"• Model: %s\n"+
			"• Severity: %s\n"+
			"• PSI: %.2f\n"+
			"• Current window: %s\n\n"+
			"SentryML will continue monitoring this model on the next scheduled run.\n"+
			"The incident will resolve automatically if the data returns to normal.\n\n"+
			"🔍 View incident details\n%s",
		emoji, severityNorm, modelID, sevLine, modelID, severityNorm, psi, currentRange, incidentLink)
}
