package worker

import (
	"math"
	"time"
)

// Windows are the two half-open evaluation intervals. Baseline immediately
// precedes current: baseline [BaselineStart, BaselineEnd) then current
// [CurrentStart, CurrentEnd), with BaselineEnd == CurrentStart.
type Windows struct {
	BaselineStart time.Time
	BaselineEnd   time.Time
	CurrentStart  time.Time
	CurrentEnd    time.Time
}

// UTCNow returns wall-clock UTC truncated to whole seconds, matching the
// precision of stored timestamps.
func UTCNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

func ComputeWindows(now time.Time, baselineDays, currentDays int) Windows {
	currentEnd := now
	currentStart := now.Add(-time.Duration(currentDays) * 24 * time.Hour)
	baselineEnd := currentStart
	baselineStart := baselineEnd.Add(-time.Duration(baselineDays) * 24 * time.Hour)
	return Windows{
		BaselineStart: baselineStart,
		BaselineEnd:   baselineEnd,
		CurrentStart:  currentStart,
		CurrentEnd:    currentEnd,
	}
}

// NormalizeScores drops null, NaN and infinite scores before any numeric use.
func NormalizeScores(scores []*float64) []float64 {
	out := make([]float64, 0, len(scores))
	for _, s := range scores {
		if s == nil || math.IsNaN(*s) || math.IsInf(*s, 0) {
			continue
		}
		out = append(out, *s)
	}
	return out
}

// EligibleForMonitoring normalizes both windows and requires minSamples valid
// values in each. Returning empty slices means skip, which is an expected
// steady state for new or low-traffic models, not an error.
func EligibleForMonitoring(baseline, current []*float64, minSamples int) ([]float64, []float64) {
	b := NormalizeScores(baseline)
	c := NormalizeScores(current)
	if len(b) < minSamples || len(c) < minSamples {
		return nil, nil
	}
	return b, c
}

// NormalizeThresholds swaps warn/critical when an operator saved them
// inverted, so the classifier always sees warn <= critical.
func NormalizeThresholds(warn, critical float64) (float64, float64) {
	if critical < warn {
		return critical, warn
	}
	return warn, critical
}
