package predictor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jlim/hazecast/internal/features"
)

// Sentinels for the two hard failure modes of the prediction path. Callers
// branch on these with errors.Is.
var (
	// ErrModelUnavailable means no fitted artifact exists for the requested
	// horizon. Only that horizon fails; siblings are unaffected.
	ErrModelUnavailable = errors.New("predictor: model unavailable")

	// ErrSchemaMismatch means a persisted artifact or cache was built
	// against a different feature column set than the current assembler.
	ErrSchemaMismatch = errors.New("predictor: feature schema mismatch")
)

// Interval half-width as a multiple of the horizon's validation RMSE. Wider
// intervals for horizons that validated worse fall out of this automatically.
const intervalRMSEMultiple = 1.5

// Model is a fitted per-horizon linear regressor, persisted as a JSON
// artifact. Columns records the exact feature schema it was trained on so a
// stale artifact is rejected at load time rather than misread.
type Model struct {
	Horizon   string    `json:"horizon"`
	Version   string    `json:"version"`
	Columns   []string  `json:"columns"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`

	// Hold-out accuracy from the calendar-disjoint test split.
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`

	TrainRows int       `json:"train_rows"`
	TestRows  int       `json:"test_rows"`
	TrainedAt time.Time `json:"trained_at"`
}

// Result is one horizon's inference output. Attribution maps feature name to
// its signed contribution (weight x value); it is nil when the model cannot
// explain itself, never an error.
type Result struct {
	Point       float64
	Lower       float64
	Upper       float64
	Attribution map[string]float64
}

// Validate checks the artifact's internal consistency against the current
// feature schema.
func (m *Model) Validate() error {
	if !features.SchemaMatches(m.Columns) {
		return fmt.Errorf("%w: artifact for %s has %d columns", ErrSchemaMismatch, m.Horizon, len(m.Columns))
	}
	if len(m.Weights) != len(m.Columns) {
		return fmt.Errorf("%w: artifact for %s has %d weights for %d columns",
			ErrSchemaMismatch, m.Horizon, len(m.Weights), len(m.Columns))
	}
	return nil
}

// Predict runs the linear model over an assembled vector. The confidence
// interval is point +/- intervalRMSEMultiple x RMSE with the lower bound
// clamped at zero, since the index cannot be negative.
func (m *Model) Predict(v features.Vector) (Result, error) {
	if err := m.Validate(); err != nil {
		return Result{}, err
	}
	if len(v.Values) != len(m.Weights) {
		return Result{}, fmt.Errorf("%w: vector has %d values, model expects %d",
			ErrSchemaMismatch, len(v.Values), len(m.Weights))
	}

	point := m.Intercept
	attribution := make(map[string]float64, len(m.Columns))
	for i, w := range m.Weights {
		contribution := w * v.Values[i]
		point += contribution
		attribution[m.Columns[i]] = contribution
	}

	if math.IsNaN(point) || math.IsInf(point, 0) {
		return Result{}, fmt.Errorf("predictor: %s model produced non-finite estimate", m.Horizon)
	}
	point = math.Max(point, 0)

	half := intervalRMSEMultiple * m.RMSE
	return Result{
		Point:       point,
		Lower:       math.Max(point-half, 0),
		Upper:       point + half,
		Attribution: attribution,
	}, nil
}
