package features

import "math"

// psiCap is the normalization ceiling; the index can exceed 500 during
// extreme events but the persistence signal saturates there.
const psiCap = 500.0

// BaselineScore normalizes the current national PSI to a 0-100 persistence
// score. Negative or NaN input scores zero.
func BaselineScore(currentPSI float64) float64 {
	if math.IsNaN(currentPSI) || currentPSI < 0 {
		return 0
	}
	return math.Min(currentPSI, psiCap) / 5.0
}
