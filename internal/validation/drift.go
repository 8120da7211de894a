package validation

import (
	"fmt"
	"math"
)

// A metric that worsens by more than this relative fraction between the
// baseline and current windows counts as significant drift.
const driftThreshold = 0.20

// MetricDrift compares one metric across the two windows. RelativeChange is
// signed: positive means the error metric grew.
type MetricDrift struct {
	Metric         string
	Baseline       float64
	Current        float64
	RelativeChange float64
	Significant    bool
}

// DriftReport is the outcome of comparing a baseline window against a
// current window.
type DriftReport struct {
	Metrics        []MetricDrift
	Significant    bool
	Recommendation string
}

// DetectDrift compares the error metrics of two windows. Only degradation
// trips the significance flag; an improving metric is drift in a direction
// nobody pages on. A zero-valued baseline metric cannot express a relative
// change and is skipped.
func DetectDrift(baseline, current Summary) DriftReport {
	var report DriftReport

	pairs := []struct {
		name              string
		baseline, current float64
	}{
		{"mae", baseline.MAE, current.MAE},
		{"rmse", baseline.RMSE, current.RMSE},
		{"mape", baseline.MAPE, current.MAPE},
	}

	worst := MetricDrift{}
	for _, pair := range pairs {
		if pair.baseline == 0 {
			continue
		}
		d := MetricDrift{
			Metric:         pair.name,
			Baseline:       pair.baseline,
			Current:        pair.current,
			RelativeChange: (pair.current - pair.baseline) / pair.baseline,
		}
		d.Significant = d.RelativeChange > driftThreshold
		if d.Significant {
			report.Significant = true
			if d.RelativeChange > worst.RelativeChange {
				worst = d
			}
		}
		report.Metrics = append(report.Metrics, d)
	}

	if report.Significant {
		report.Recommendation = fmt.Sprintf(
			"retrain: %s degraded %.0f%% (%.2f -> %.2f) against a %.0f%% threshold",
			worst.Metric, 100*worst.RelativeChange, worst.Baseline, worst.Current,
			100*math.Abs(driftThreshold))
	} else {
		report.Recommendation = "no action: metrics within drift threshold"
	}
	return report
}
