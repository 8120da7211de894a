package features

import (
	"fmt"
	"time"
)

// Columns is the fixed feature schema, in the exact order models are trained
// on. Adding a column here changes the schema for both the training table and
// live inference at once; persisted model artifacts and feature caches built
// against the old column set are rejected at load time.
var Columns = []string{
	"fire_risk_score",
	"wind_transport_score",
	"baseline_score",

	"psi_lag_1h",
	"psi_lag_6h",
	"psi_lag_12h",
	"psi_lag_24h",
	"psi_trend_1h_6h",
	"psi_trend_6h_24h",

	"hour",
	"day_of_week",
	"month",
	"day_of_year",
	"season",

	"fire_count_near",
	"fire_frp_sum_near",
	"fire_frp_mean_near",
	"fire_count_medium",
	"fire_frp_sum_medium",
	"fire_frp_mean_medium",
	"fire_count_far",
	"fire_frp_sum_far",
	"fire_frp_mean_far",
	"fire_count_very_far",
	"fire_frp_sum_very_far",
	"fire_frp_mean_very_far",
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// Source fallback flags recorded on a degraded vector.
const (
	DegradedFires   = "fires"
	DegradedWind    = "wind"
	DegradedHistory = "psi_history"
	DegradedCurrent = "psi_current"
)

// Vector is one assembled feature row for a reference timestamp. Values are
// ordered exactly as Columns; Degraded lists the sources whose documented
// fallback was used instead of real data.
type Vector struct {
	ReferenceTime time.Time
	Values        []float64
	Degraded      []string
}

// Value returns the named feature. It panics on an unknown column name, which
// only happens on a programming error, never on bad data.
func (v Vector) Value(name string) float64 {
	idx, ok := columnIndex[name]
	if !ok {
		panic(fmt.Sprintf("features: unknown column %q", name))
	}
	return v.Values[idx]
}

// Equal reports whether two vectors have byte-identical values. Used by the
// training/inference parity check.
func (v Vector) Equal(other Vector) bool {
	if len(v.Values) != len(other.Values) {
		return false
	}
	for i := range v.Values {
		if v.Values[i] != other.Values[i] {
			return false
		}
	}
	return true
}

// SchemaMatches reports whether cols is exactly the current schema, same
// names in the same order.
func SchemaMatches(cols []string) bool {
	if len(cols) != len(Columns) {
		return false
	}
	for i := range cols {
		if cols[i] != Columns[i] {
			return false
		}
	}
	return true
}
