package benchmark

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/predictor"
)

func flatModel(intercept float64) *predictor.Model {
	return &predictor.Model{
		Horizon:   "24h",
		Version:   "bench-1",
		Columns:   features.Columns,
		Weights:   make([]float64, len(features.Columns)),
		Intercept: intercept,
	}
}

func labelledRows(n int, target float64) []predictor.TrainingRow {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]predictor.TrainingRow, n)
	for i := range rows {
		rows[i] = predictor.TrainingRow{
			Vector: features.Vector{
				ReferenceTime: start.Add(time.Duration(i) * time.Hour),
				Values:        make([]float64, len(features.Columns)),
			},
			Targets: map[string]float64{"24h": target},
		}
	}
	return rows
}

func waitTerminal(t *testing.T, job *Job) Status {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		s := job.Snapshot()
		if s.State == StateCompleted || s.State == StateFailed {
			return s
		}
		select {
		case <-deadline:
			t.Fatalf("job did not reach a terminal state, last = %+v", s)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRunnerCompletesJob(t *testing.T) {
	runner := NewRunner()
	// Constant model predicting 60 against a constant target of 50.
	job := runner.Submit(context.Background(), flatModel(60), labelledRows(10, 50))

	s := waitTerminal(t, job)
	if s.State != StateCompleted {
		t.Fatalf("state = %s, error = %q", s.State, s.Error)
	}
	if s.Completed != 10 || s.Total != 10 {
		t.Errorf("progress = %d/%d, want 10/10", s.Completed, s.Total)
	}
	if s.Result == nil {
		t.Fatal("completed job has no result")
	}
	if math.Abs(s.Result.MAE-10) > 1e-9 || math.Abs(s.Result.RMSE-10) > 1e-9 {
		t.Errorf("result = %+v, want MAE and RMSE of 10", s.Result)
	}

	got, ok := runner.Job(s.ID)
	if !ok || got.Snapshot().ID != s.ID {
		t.Error("job not findable by ID")
	}
}

func TestRunnerSkipsUnlabelledRows(t *testing.T) {
	rows := labelledRows(5, 50)
	rows = append(rows, predictor.TrainingRow{
		Vector: features.Vector{Values: make([]float64, len(features.Columns))},
		// No 24h target.
		Targets: map[string]float64{"48h": 70},
	})

	job := NewRunner().Submit(context.Background(), flatModel(60), rows)
	s := waitTerminal(t, job)
	if s.State != StateCompleted || s.Total != 5 {
		t.Errorf("state = %s, total = %d, want 5 labelled cases", s.State, s.Total)
	}
}

func TestRunnerFailsOnSchemaMismatch(t *testing.T) {
	model := &predictor.Model{
		Horizon: "24h",
		Columns: features.Columns[:3],
		Weights: make([]float64, 3),
	}
	job := NewRunner().Submit(context.Background(), model, labelledRows(3, 50))

	s := waitTerminal(t, job)
	if s.State != StateFailed {
		t.Fatalf("state = %s, want failed", s.State)
	}
	if s.Error == "" {
		t.Error("failed job must carry its error")
	}
	if s.Result != nil {
		t.Error("failed job must not expose a partial result")
	}
}

func TestRunnerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	job := NewRunner().Submit(ctx, flatModel(60), labelledRows(100, 50))

	s := waitTerminal(t, job)
	if s.State != StateFailed || s.Error != "cancelled" {
		t.Fatalf("state = %s error = %q, want failed/cancelled", s.State, s.Error)
	}
	if s.Result != nil {
		t.Error("cancelled job must not expose a partial result")
	}
}
