package validation

import (
	"math"

	"github.com/jlim/hazecast/internal/models"
)

// AlertThreshold is the PSI above which a reading counts as an unhealthy-air
// alert for classification purposes.
const AlertThreshold = 100.0

// PSI bands, from the national reporting scale.
const (
	BandGood          = "good"
	BandModerate      = "moderate"
	BandUnhealthy     = "unhealthy"
	BandVeryUnhealthy = "very_unhealthy"
	BandHazardous     = "hazardous"
)

// PSIBand maps an index value to its reporting band.
func PSIBand(psi float64) string {
	switch {
	case psi <= 50:
		return BandGood
	case psi <= 100:
		return BandModerate
	case psi <= 200:
		return BandUnhealthy
	case psi <= 300:
		return BandVeryUnhealthy
	default:
		return BandHazardous
	}
}

// Summary is the regression quality of a set of scored predictions.
type Summary struct {
	SampleCount      int
	MAE              float64
	RMSE             float64
	R2               float64
	MAPE             float64 // percent, over samples with non-zero actuals
	IntervalCoverage float64 // fraction of actuals inside the stored interval
}

// Regression computes aggregate error statistics over scored predictions.
// Unscored records are skipped, never counted as zero error.
func Regression(preds []models.Prediction) Summary {
	var s Summary
	var sumActual, sumAbs, sumSq, sumAPE float64
	var apeCount, covered int

	for _, p := range preds {
		if !p.Scored() {
			continue
		}
		s.SampleCount++
		actual := p.ActualPSI.Float64
		sumActual += actual
		sumAbs += p.AbsoluteError.Float64
		sumSq += p.SquaredError.Float64
		if actual != 0 {
			sumAPE += p.AbsoluteError.Float64 / math.Abs(actual)
			apeCount++
		}
		if p.WithinInterval.Valid && p.WithinInterval.Bool {
			covered++
		}
	}
	if s.SampleCount == 0 {
		return s
	}

	n := float64(s.SampleCount)
	s.MAE = sumAbs / n
	s.RMSE = math.Sqrt(sumSq / n)
	s.IntervalCoverage = float64(covered) / n
	if apeCount > 0 {
		s.MAPE = 100 * sumAPE / float64(apeCount)
	}

	// R^2 against the mean-actual baseline. A constant actual series has no
	// variance to explain; report zero rather than dividing by it.
	mean := sumActual / n
	var ssTot float64
	for _, p := range preds {
		if !p.Scored() {
			continue
		}
		d := p.ActualPSI.Float64 - mean
		ssTot += d * d
	}
	if ssTot > 0 {
		s.R2 = 1 - sumSq/ssTot
	}
	return s
}

// Classification is binary alert quality at the unhealthy threshold.
type Classification struct {
	TruePositives      int
	FalsePositives     int
	FalseNegatives     int
	TrueNegatives      int
	PredictedPositives int
	Precision          float64
	Recall             float64
	F1                 float64
}

// AlertClassification treats "PSI exceeds the alert threshold" as a binary
// label and scores the predictions against realized outcomes.
func AlertClassification(preds []models.Prediction) Classification {
	var c Classification
	for _, p := range preds {
		if !p.Scored() {
			continue
		}
		predicted := p.PredictedPSI > AlertThreshold
		actual := p.ActualPSI.Float64 > AlertThreshold
		switch {
		case predicted && actual:
			c.TruePositives++
		case predicted && !actual:
			c.FalsePositives++
		case !predicted && actual:
			c.FalseNegatives++
		default:
			c.TrueNegatives++
		}
	}

	c.PredictedPositives = c.TruePositives + c.FalsePositives
	if c.PredictedPositives > 0 {
		c.Precision = float64(c.TruePositives) / float64(c.PredictedPositives)
	}
	if c.TruePositives+c.FalseNegatives > 0 {
		c.Recall = float64(c.TruePositives) / float64(c.TruePositives+c.FalseNegatives)
	}
	if c.Precision+c.Recall > 0 {
		c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
	}
	return c
}

// BandAccuracy groups scored predictions by the actual reading's band and
// reports, per band, the fraction whose predicted band matched.
func BandAccuracy(preds []models.Prediction) map[string]float64 {
	hits := make(map[string]int)
	totals := make(map[string]int)
	for _, p := range preds {
		if !p.Scored() {
			continue
		}
		actualBand := PSIBand(p.ActualPSI.Float64)
		totals[actualBand]++
		if PSIBand(p.PredictedPSI) == actualBand {
			hits[actualBand]++
		}
	}

	out := make(map[string]float64, len(totals))
	for band, total := range totals {
		out[band] = float64(hits[band]) / float64(total)
	}
	return out
}
