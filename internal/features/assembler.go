package features

import (
	"time"

	"github.com/jlim/hazecast/internal/models"
)

// Singapore city centre, the target point for every composite score.
const (
	DefaultCityLat = 1.3521
	DefaultCityLon = 103.8198
)

// Inputs carries the raw source data for one reference timestamp. Callers
// mark a source unavailable when its fetch failed, which is distinct from a
// source that genuinely returned nothing: zero fires with FiresAvailable=true
// means a quiet day, with FiresAvailable=false it means the provider was down
// and the zero scores are fallbacks.
type Inputs struct {
	Fires          []models.FireDetection
	FiresAvailable bool

	Wind          WindField
	WindAvailable bool

	// History is the national pollutant series ascending by timestamp,
	// covering at least 24h before the reference time.
	History          []models.PollutantReading
	HistoryAvailable bool

	// CurrentPSI is the latest national reading at the reference time.
	CurrentPSI          float64
	CurrentPSIAvailable bool
}

// Assembler builds feature vectors. The same Assemble call backs both the
// historical training table and the live inference row; the two paths must
// never diverge, so neither has any feature logic of its own.
type Assembler struct {
	CityLat float64
	CityLon float64
}

func NewAssembler() *Assembler {
	return &Assembler{CityLat: DefaultCityLat, CityLon: DefaultCityLon}
}

// Assemble produces the fixed-schema vector for ref. All falls back are
// deterministic: unavailable fires or wind score zero, unavailable pollutant
// data pins the persistence features to the fallback reading, and every
// fallback is recorded on the vector for auditing.
func (a *Assembler) Assemble(ref time.Time, in Inputs) Vector {
	v := Vector{
		ReferenceTime: ref,
		Values:        make([]float64, len(Columns)),
	}

	fires := in.Fires
	if !in.FiresAvailable {
		fires = nil
		v.Degraded = append(v.Degraded, DegradedFires)
	}

	wind := in.Wind
	if !in.WindAvailable {
		wind = nil
		v.Degraded = append(v.Degraded, DegradedWind)
	}

	currentPSI := in.CurrentPSI
	if !in.CurrentPSIAvailable {
		currentPSI = 0
		v.Degraded = append(v.Degraded, DegradedCurrent)
	}

	history := in.History
	if !in.HistoryAvailable {
		history = nil
		v.Degraded = append(v.Degraded, DegradedHistory)
	}

	i := 0
	put := func(val float64) {
		v.Values[i] = val
		i++
	}

	put(FireRiskScore(fires, a.CityLat, a.CityLon, ref))

	clusters := ClusterFires(fires)
	put(WindTransportScore(clusters, wind, a.CityLat, a.CityLon, TransportSimulationHours))

	put(BaselineScore(currentPSI))

	lags := LagFeatures(history, ref, currentPSI)
	put(lags.Lag1h)
	put(lags.Lag6h)
	put(lags.Lag12h)
	put(lags.Lag24h)
	put(lags.Trend1h6h)
	put(lags.Trend6h24h)

	temporal := TemporalFeatures(ref)
	put(float64(temporal.Hour))
	put(float64(temporal.DayOfWeek))
	put(float64(temporal.Month))
	put(float64(temporal.DayOfYear))
	put(float64(temporal.Season))

	bands := FireBandFeatures(fires, a.CityLat, a.CityLon)
	for _, b := range bands {
		put(float64(b.Count))
		put(b.FRPSum)
		put(b.FRPMean)
	}

	return v
}

// ComponentScores pulls the three composite scores out of an assembled
// vector, for storage alongside a prediction.
func ComponentScores(v Vector) (fireRisk, windTransport, baseline float64) {
	return v.Value("fire_risk_score"), v.Value("wind_transport_score"), v.Value("baseline_score")
}
