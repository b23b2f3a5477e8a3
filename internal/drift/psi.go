package drift

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

const (
	DefaultBins           = 10
	DefaultEpsilon        = 1e-6
	DefaultWinsorQuantile = 0.01
)

// Quantile returns the linearly-interpolated value at probability q in [0, 1].
// Input must be sorted ascending and non-empty.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := float64(n-1) * q
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// QuantileEdges computes numBins+1 bin edges from baseline quantiles, so bin
// boundaries follow the baseline's own distribution rather than fixed widths.
// Edges are forced strictly increasing by nudging ties with a magnitude-relative
// epsilon, which keeps constant baselines binnable.
func QuantileEdges(baseline []float64, numBins int) ([]float64, error) {
	if numBins <= 1 {
		return nil, errors.New("numBins must be > 1")
	}
	if len(baseline) == 0 {
		return nil, errors.New("baseline is empty")
	}
	sorted := make([]float64, len(baseline))
	copy(sorted, baseline)
	sort.Float64s(sorted)

	edges := make([]float64, numBins+1)
	for k := 0; k <= numBins; k++ {
		edges[k] = Quantile(sorted, float64(k)/float64(numBins))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			eps := 1e-12
			if edges[i-1] != 0 {
				eps = math.Abs(edges[i-1]) * 1e-12
			}
			edges[i] = edges[i-1] + eps
		}
	}
	return edges, nil
}

// Winsorize clips values into [lo, hi] to bound outlier influence.
func Winsorize(values []float64, lo, hi float64) []float64 {
	out := make([]float64, len(values))
	for i, x := range values {
		switch {
		case x < lo:
			out[i] = lo
		case x > hi:
			out[i] = hi
		default:
			out[i] = x
		}
	}
	return out
}

// histogram bins values into len(edges)-1 counts. Values below the first edge
// land in bin 0 and values above the last edge in the last bin. Interior bins
// are half-open [edges[i], edges[i+1]); the last bin includes its right edge.
func histogram(values []float64, edges []float64) []int {
	counts := make([]int, len(edges)-1)
	last := len(edges) - 2
	for _, x := range values {
		if x < edges[0] {
			counts[0]++
			continue
		}
		if x > edges[len(edges)-1] {
			counts[last]++
			continue
		}
		for i := 0; i <= last; i++ {
			if i == last {
				if edges[i] <= x && x <= edges[i+1] {
					counts[i]++
					break
				}
			} else if edges[i] <= x && x < edges[i+1] {
				counts[i]++
				break
			}
		}
	}
	return counts
}

// PSI computes the Population Stability Index between baseline and current with
// default epsilon and winsor quantile.
func PSI(baseline, current []float64, numBins int) (float64, error) {
	return PSIQuantile(baseline, current, numBins, DefaultEpsilon, DefaultWinsorQuantile)
}

// PSIQuantile computes PSI over quantile-derived bins from baseline, after
// winsorizing current into baseline's [winsorQ, 1-winsorQ] range. An empty
// baseline or current means no detectable drift and yields 0.
func PSIQuantile(baseline, current []float64, numBins int, eps, winsorQ float64) (float64, error) {
	if len(baseline) == 0 || len(current) == 0 {
		return 0, nil
	}
	edges, err := QuantileEdges(baseline, numBins)
	if err != nil {
		return 0, fmt.Errorf("quantile edges: %w", err)
	}

	sorted := make([]float64, len(baseline))
	copy(sorted, baseline)
	sort.Float64s(sorted)
	lo := Quantile(sorted, winsorQ)
	hi := Quantile(sorted, 1.0-winsorQ)
	cur := Winsorize(current, lo, hi)

	baseCounts := histogram(baseline, edges)
	curCounts := histogram(cur, edges)

	baseTotal := 0
	curTotal := 0
	for i := range baseCounts {
		baseTotal += baseCounts[i]
		curTotal += curCounts[i]
	}
	if baseTotal == 0 || curTotal == 0 {
		return 0, nil
	}

	score := 0.0
	for i := range baseCounts {
		bPct := math.Max(float64(baseCounts[i])/float64(baseTotal), eps)
		cPct := math.Max(float64(curCounts[i])/float64(curTotal), eps)
		score += (cPct - bPct) * math.Log(cPct/bPct)
	}
	return score, nil
}
