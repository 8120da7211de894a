package features

import (
	"database/sql"
	"testing"
	"time"

	"github.com/jlim/hazecast/internal/models"
)

func fullInputs(ref time.Time) Inputs {
	fires := []models.FireDetection{
		detectionAtDistance(300, 45, time.Hour),
		detectionAtDistance(600, 90, 3*time.Hour),
		fireAt(-2.5, 104.0, 120),
	}

	var obs []models.WeatherObservation
	for h := 0; h < 24; h++ {
		obs = append(obs, models.WeatherObservation{
			Timestamp:     ref.Add(time.Duration(h) * time.Hour),
			Latitude:      0.0,
			Longitude:     103.0,
			WindSpeed:     sql.NullFloat64{Float64: 18, Valid: true},
			WindDirection: sql.NullFloat64{Float64: 200, Valid: true},
		})
	}

	history := []models.PollutantReading{
		nationalReading(ref.Add(-24*time.Hour), 48),
		nationalReading(ref.Add(-12*time.Hour), 52),
		nationalReading(ref.Add(-6*time.Hour), 58),
		nationalReading(ref.Add(-1*time.Hour), 63),
	}

	return Inputs{
		Fires:          fires,
		FiresAvailable: true,

		Wind:          NewGridWindField(obs, ref, 24),
		WindAvailable: true,

		History:          history,
		HistoryAvailable: true,

		CurrentPSI:          63,
		CurrentPSIAvailable: true,
	}
}

func TestAssembleSchemaAndDeterminism(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	a := NewAssembler()

	first := a.Assemble(ref, fullInputs(ref))
	if len(first.Values) != len(Columns) {
		t.Fatalf("vector length = %d, want %d", len(first.Values), len(Columns))
	}
	if len(first.Degraded) != 0 {
		t.Errorf("fully available inputs flagged degraded: %v", first.Degraded)
	}

	// Rebuilding from identical inputs must reproduce the vector exactly,
	// bit for bit. This is the contract that keeps the historical training
	// table and live inference interchangeable.
	for run := 0; run < 5; run++ {
		again := a.Assemble(ref, fullInputs(ref))
		if !first.Equal(again) {
			t.Fatalf("run %d: vector not reproducible:\n first = %v\n again = %v", run, first.Values, again.Values)
		}
	}
}

func TestAssembleTrainingInferenceParity(t *testing.T) {
	// The batch path assembles many timestamps in a loop; the live path
	// assembles one. Same data, same timestamp: the rows must be identical.
	a := NewAssembler()
	refs := []time.Time{
		time.Date(2025, 9, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 14, 6, 0, 0, 0, time.UTC),
		time.Date(2025, 9, 14, 12, 0, 0, 0, time.UTC),
	}

	batch := make(map[time.Time]Vector)
	for _, ref := range refs {
		batch[ref] = a.Assemble(ref, fullInputs(ref))
	}

	for _, ref := range refs {
		live := a.Assemble(ref, fullInputs(ref))
		if !live.Equal(batch[ref]) {
			t.Errorf("ref %v: live vector differs from batch vector", ref)
		}
	}
}

func TestAssembleDegradedFires(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	in := fullInputs(ref)
	in.FiresAvailable = false

	v := NewAssembler().Assemble(ref, in)

	if v.Value("fire_risk_score") != 0 {
		t.Errorf("fire_risk_score = %v, want 0 when fires unavailable", v.Value("fire_risk_score"))
	}
	if v.Value("wind_transport_score") != 0 {
		t.Errorf("wind_transport_score = %v, want 0 with no clusters", v.Value("wind_transport_score"))
	}
	if v.Value("fire_count_near") != 0 || v.Value("fire_frp_sum_far") != 0 {
		t.Error("band features must zero out when fires unavailable")
	}
	if !hasFlag(v.Degraded, DegradedFires) {
		t.Errorf("Degraded = %v, want %q recorded", v.Degraded, DegradedFires)
	}
	// Pollutant features are untouched by a fire outage.
	if v.Value("psi_lag_1h") != 63 {
		t.Errorf("psi_lag_1h = %v, want 63", v.Value("psi_lag_1h"))
	}
}

func TestAssembleDegradedWind(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	in := fullInputs(ref)
	in.WindAvailable = false

	v := NewAssembler().Assemble(ref, in)
	if v.Value("wind_transport_score") != 0 {
		t.Errorf("wind_transport_score = %v, want 0 when wind unavailable", v.Value("wind_transport_score"))
	}
	if v.Value("fire_risk_score") == 0 {
		t.Error("fire_risk_score should survive a wind outage")
	}
	if !hasFlag(v.Degraded, DegradedWind) {
		t.Errorf("Degraded = %v, want %q recorded", v.Degraded, DegradedWind)
	}
}

func TestAssembleDegradedPollutants(t *testing.T) {
	ref := time.Date(2025, 9, 15, 12, 0, 0, 0, time.UTC)
	in := fullInputs(ref)
	in.HistoryAvailable = false
	in.CurrentPSIAvailable = false

	v := NewAssembler().Assemble(ref, in)
	if v.Value("baseline_score") != 0 {
		t.Errorf("baseline_score = %v, want 0 without a current reading", v.Value("baseline_score"))
	}
	if v.Value("psi_lag_24h") != 0 || v.Value("psi_trend_1h_6h") != 0 {
		t.Error("lag features should pin to the zero fallback with no history and no current reading")
	}
	if !hasFlag(v.Degraded, DegradedHistory) || !hasFlag(v.Degraded, DegradedCurrent) {
		t.Errorf("Degraded = %v, want both pollutant flags", v.Degraded)
	}
}

func TestVectorValueUnknownColumnPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Value on an unknown column should panic")
		}
	}()
	var v Vector
	v.Value("no_such_feature")
}

func TestSchemaMatches(t *testing.T) {
	if !SchemaMatches(Columns) {
		t.Error("schema must match itself")
	}
	if SchemaMatches(Columns[:len(Columns)-1]) {
		t.Error("truncated schema must not match")
	}
	reordered := make([]string, len(Columns))
	copy(reordered, Columns)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	if SchemaMatches(reordered) {
		t.Error("reordered schema must not match")
	}
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
