package validation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jlim/hazecast/internal/models"
)

// ErrAlreadyScored guards the prediction state machine: created -> scored,
// nothing else. A second scoring attempt is rejected, never averaged in.
var ErrAlreadyScored = errors.New("validation: prediction already scored")

// A realized reading within this window of the prediction's target timestamp
// counts as its outcome.
const outcomeMatchTolerance = 3 * time.Hour

// Store is the slice of the persistence layer the validation engine needs.
type Store interface {
	UnscoredBefore(ctx context.Context, t time.Time) ([]models.Prediction, error)
	NationalPSIAt(ctx context.Context, t time.Time, tolerance time.Duration) (float64, bool, error)
	RecordOutcome(ctx context.Context, p models.Prediction) error
	ScoredPredictions(ctx context.Context, horizon string, from, to time.Time) ([]models.Prediction, error)
	UpsertMetricsBucket(ctx context.Context, m models.ValidationMetrics) error
}

// Engine scores matured predictions against realized readings and keeps the
// per-day aggregate buckets current.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Score fills in the outcome fields of a prediction. Calling it on a scored
// prediction fails with ErrAlreadyScored; the caller treats that as a no-op.
func Score(p *models.Prediction, actual float64, now time.Time) error {
	if p.Scored() {
		return fmt.Errorf("%w: prediction %d", ErrAlreadyScored, p.ID)
	}

	diff := actual - p.PredictedPSI
	if diff < 0 {
		diff = -diff
	}
	p.ActualPSI = sql.NullFloat64{Float64: actual, Valid: true}
	p.AbsoluteError = sql.NullFloat64{Float64: diff, Valid: true}
	p.SquaredError = sql.NullFloat64{Float64: diff * diff, Valid: true}
	p.WithinInterval = sql.NullBool{
		Bool:  actual >= p.ConfidenceLower && actual <= p.ConfidenceUpper,
		Valid: true,
	}
	p.ScoredAt = sql.NullTime{Time: now.UTC(), Valid: true}
	return nil
}

// ScoreMatured scores every unscored prediction whose target timestamp has
// passed and a realized national reading exists. Predictions with no reading
// yet are left for the next run. Returns the number scored.
func (e *Engine) ScoreMatured(ctx context.Context, now time.Time) (int, error) {
	pending, err := e.store.UnscoredBefore(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("scoring: %w", err)
	}

	type bucket struct {
		horizon string
		date    time.Time
	}
	touched := make(map[bucket]struct{})

	scored := 0
	for _, p := range pending {
		actual, ok, err := e.store.NationalPSIAt(ctx, p.TargetTimestamp, outcomeMatchTolerance)
		if err != nil {
			return scored, fmt.Errorf("scoring: %w", err)
		}
		if !ok {
			continue
		}

		if err := Score(&p, actual, now); err != nil {
			if errors.Is(err, ErrAlreadyScored) {
				continue
			}
			return scored, err
		}
		if err := e.store.RecordOutcome(ctx, p); err != nil {
			return scored, fmt.Errorf("scoring: %w", err)
		}
		scored++
		touched[bucket{p.Horizon, dayOf(p.TargetTimestamp)}] = struct{}{}
	}

	for b := range touched {
		if err := e.recomputeBucket(ctx, b.horizon, b.date); err != nil {
			log.Printf("validation: bucket %s/%s: %v", b.horizon, b.date.Format("2006-01-02"), err)
		}
	}
	return scored, nil
}

// recomputeBucket rebuilds one (horizon, day) aggregate from its scored
// predictions. The upsert makes rebuilding idempotent.
func (e *Engine) recomputeBucket(ctx context.Context, horizon string, date time.Time) error {
	preds, err := e.store.ScoredPredictions(ctx, horizon, date, date.Add(24*time.Hour))
	if err != nil {
		return err
	}
	if len(preds) == 0 {
		return nil
	}

	summary := Regression(preds)
	alerts := AlertClassification(preds)

	m := models.ValidationMetrics{
		Horizon:     horizon,
		Date:        date,
		SampleCount: summary.SampleCount,
		MAE:         summary.MAE,
		RMSE:        summary.RMSE,
		UpdatedAt:   time.Now().UTC(),
	}
	if alerts.PredictedPositives > 0 {
		m.AlertPrecision = sql.NullFloat64{Float64: alerts.Precision, Valid: true}
	}
	return e.store.UpsertMetricsBucket(ctx, m)
}

func dayOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
