package predictor

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/models"
)

const (
	// A realized reading within this window of the target timestamp counts
	// as the outcome for that target.
	targetMatchTolerance = 3 * time.Hour

	// Below this many labelled rows a horizon is not worth fitting.
	minTrainingSamples = 5

	// Calendar share of the dataset used for fitting; the strictly later
	// remainder is the hold-out.
	trainFraction = 0.8

	// Small ridge term keeps the normal equations solvable when the row
	// count is below the feature count.
	ridgeLambda = 1e-3

	defaultBuildWorkers = 8
)

// TrainingRow is one labelled example: the assembled vector at a reference
// time plus the realized national PSI at each horizon that matured. A horizon
// with no matching reading is simply absent from Targets.
type TrainingRow struct {
	Vector  features.Vector
	Targets map[string]float64
}

// RealizedPSI finds the national reading closest to target within the match
// tolerance. The series may be in any order.
func RealizedPSI(readings []models.PollutantReading, target time.Time) (float64, bool) {
	best := 0.0
	bestGap := targetMatchTolerance + 1
	for _, r := range readings {
		if r.Region != models.RegionNational || !r.PSI24h.Valid {
			continue
		}
		gap := r.Timestamp.Sub(target)
		if gap < 0 {
			gap = -gap
		}
		if gap <= targetMatchTolerance && gap < bestGap {
			best = r.PSI24h.Float64
			bestGap = gap
		}
	}
	return best, bestGap <= targetMatchTolerance
}

// BuildDataset assembles one row per reference timestamp, labelling each with
// the realized PSI at every horizon. Rows are built in parallel across a
// bounded worker pool: each timestamp reads the shared immutable sources and
// writes its own slot, so no synchronization beyond the pool is needed.
// inputsFor must be safe for concurrent calls.
func BuildDataset(ctx context.Context, refs []time.Time, workers int,
	inputsFor func(time.Time) features.Inputs, readings []models.PollutantReading) []TrainingRow {

	if workers <= 0 {
		workers = defaultBuildWorkers
	}

	assembler := features.NewAssembler()
	rows := make([]TrainingRow, len(refs))
	idx := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				ref := refs[i]
				row := TrainingRow{
					Vector:  assembler.Assemble(ref, inputsFor(ref)),
					Targets: make(map[string]float64, len(models.Horizons)),
				}
				for _, h := range models.Horizons {
					target := ref.Add(time.Duration(models.HorizonHours[h]) * time.Hour)
					if psi, ok := RealizedPSI(readings, target); ok {
						row.Targets[h] = psi
					}
				}
				rows[i] = row
			}
		}()
	}

feed:
	for i := range refs {
		select {
		case idx <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(idx)
	wg.Wait()

	if ctx.Err() != nil {
		return nil
	}
	return rows
}

// SplitByDate partitions rows into a training set and a strictly later test
// set. Rows sharing the cut timestamp all go to the training side, so the
// minimum test reference time is always after the maximum training one.
func SplitByDate(rows []TrainingRow) (train, test []TrainingRow) {
	sorted := make([]TrainingRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Vector.ReferenceTime.Before(sorted[j].Vector.ReferenceTime)
	})

	cut := int(float64(len(sorted)) * trainFraction)
	if cut < 1 {
		cut = 1
	}
	for cut < len(sorted) && !sorted[cut].Vector.ReferenceTime.After(sorted[cut-1].Vector.ReferenceTime) {
		cut++
	}
	return sorted[:cut], sorted[cut:]
}

// Train fits one horizon's model on the rows that have a realized target for
// it, evaluating on the calendar hold-out. When the hold-out is empty the
// training residuals stand in, which overstates accuracy but keeps the
// interval width defined.
func Train(horizon string, rows []TrainingRow, version string) (*Model, error) {
	if _, ok := models.HorizonHours[horizon]; !ok {
		return nil, fmt.Errorf("predictor: unknown horizon %q", horizon)
	}

	var labelled []TrainingRow
	for _, r := range rows {
		if _, ok := r.Targets[horizon]; ok {
			labelled = append(labelled, r)
		}
	}
	if len(labelled) < minTrainingSamples {
		return nil, fmt.Errorf("predictor: horizon %s has %d labelled rows, need %d",
			horizon, len(labelled), minTrainingSamples)
	}

	train, test := SplitByDate(labelled)

	weights, intercept, err := fitLeastSquares(train, horizon)
	if err != nil {
		return nil, fmt.Errorf("predictor: fit %s: %w", horizon, err)
	}

	eval := test
	if len(eval) == 0 {
		eval = train
	}
	mae, rmse := residualStats(weights, intercept, eval, horizon)

	return &Model{
		Horizon:   horizon,
		Version:   version,
		Columns:   append([]string(nil), features.Columns...),
		Weights:   weights,
		Intercept: intercept,
		RMSE:      rmse,
		MAE:       mae,
		TrainRows: len(train),
		TestRows:  len(test),
		TrainedAt: time.Now().UTC(),
	}, nil
}

// TrainAll fits every horizon independently. A horizon that cannot be fitted
// is logged and skipped; it does not block its siblings.
func TrainAll(rows []TrainingRow, version string) map[string]*Model {
	fitted := make(map[string]*Model)
	for _, h := range models.Horizons {
		m, err := Train(h, rows, version)
		if err != nil {
			log.Printf("predictor: %v", err)
			continue
		}
		fitted[h] = m
		log.Printf("predictor: trained %s model %s on %d rows (holdout rmse %.2f)", h, version, m.TrainRows, m.RMSE)
	}
	return fitted
}

// fitLeastSquares solves the ridge-regularized normal equations for the
// horizon's targets. The first design column is the intercept.
func fitLeastSquares(rows []TrainingRow, horizon string) (weights []float64, intercept float64, err error) {
	n := len(rows)
	p := len(features.Columns)

	x := mat.NewDense(n, p+1, nil)
	y := mat.NewVecDense(n, nil)
	for i, r := range rows {
		x.Set(i, 0, 1)
		for j, v := range r.Vector.Values {
			x.Set(i, j+1, v)
		}
		y.SetVec(i, r.Targets[horizon])
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for i := 0; i <= p; i++ {
		xtx.Set(i, i, xtx.At(i, i)+ridgeLambda)
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), y)

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		return nil, 0, err
	}

	weights = make([]float64, p)
	for j := 0; j < p; j++ {
		weights[j] = beta.AtVec(j + 1)
	}
	return weights, beta.AtVec(0), nil
}

func residualStats(weights []float64, intercept float64, rows []TrainingRow, horizon string) (mae, rmse float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	for _, r := range rows {
		est := intercept
		for j, w := range weights {
			est += w * r.Vector.Values[j]
		}
		resid := est - r.Targets[horizon]
		mae += math.Abs(resid)
		rmse += resid * resid
	}
	n := float64(len(rows))
	return mae / n, math.Sqrt(rmse / n)
}
