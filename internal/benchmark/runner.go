package benchmark

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jlim/hazecast/internal/metrics"
	"github.com/jlim/hazecast/internal/predictor"
)

// State is a job's position in its lifecycle. The machine is
// queued -> running -> completed | failed, with no other transitions;
// cancellation lands in failed.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Result is the aggregate outcome of a completed job. Partial progress from
// a failed or cancelled job never produces one.
type Result struct {
	Horizon     string
	SampleCount int
	MAE         float64
	RMSE        float64
}

// Status is a point-in-time snapshot of a job for polling clients.
type Status struct {
	ID         string
	State      State
	Completed  int
	Total      int
	Error      string
	Result     *Result
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Job is one asynchronous evaluation of a model over labelled rows.
type Job struct {
	id     string
	cancel context.CancelFunc

	mu         sync.Mutex
	state      State
	completed  int
	total      int
	err        string
	result     *Result
	createdAt  time.Time
	startedAt  time.Time
	finishedAt time.Time
}

// Snapshot returns the job's current status. Progress counts move while the
// job runs, but the result is only set once the state is completed.
func (j *Job) Snapshot() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Status{
		ID:         j.id,
		State:      j.state,
		Completed:  j.completed,
		Total:      j.total,
		Error:      j.err,
		Result:     j.result,
		CreatedAt:  j.createdAt,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
}

// Cancel requests cooperative cancellation. The runner honors it between
// test cases; a mid-case computation always finishes.
func (j *Job) Cancel() {
	j.cancel()
}

// Runner owns benchmark jobs and executes each on its own goroutine.
type Runner struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

func NewRunner() *Runner {
	return &Runner{jobs: make(map[string]*Job)}
}

// Submit queues an evaluation of the model over the rows labelled for its
// horizon and starts it immediately. The returned job is polled by ID.
func (r *Runner) Submit(ctx context.Context, model *predictor.Model, rows []predictor.TrainingRow) *Job {
	var cases []predictor.TrainingRow
	for _, row := range rows {
		if _, ok := row.Targets[model.Horizon]; ok {
			cases = append(cases, row)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	job := &Job{
		id:        uuid.NewString(),
		cancel:    cancel,
		state:     StateQueued,
		total:     len(cases),
		createdAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.jobs[job.id] = job
	r.mu.Unlock()

	go r.run(ctx, job, model, cases)
	return job
}

// Job looks up a job by ID.
func (r *Runner) Job(id string) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

func (r *Runner) run(ctx context.Context, job *Job, model *predictor.Model, cases []predictor.TrainingRow) {
	job.mu.Lock()
	job.state = StateRunning
	job.startedAt = time.Now().UTC()
	job.mu.Unlock()

	var sumAbs, sumSq float64
	for i, c := range cases {
		// Cancellation is checked between cases; a single prediction is
		// sub-second and not worth interrupting.
		select {
		case <-ctx.Done():
			r.finish(job, StateFailed, "cancelled", nil)
			return
		default:
		}

		res, err := model.Predict(c.Vector)
		if err != nil {
			r.finish(job, StateFailed, fmt.Sprintf("case %d: %v", i, err), nil)
			return
		}

		diff := res.Point - c.Targets[model.Horizon]
		sumAbs += math.Abs(diff)
		sumSq += diff * diff

		job.mu.Lock()
		job.completed++
		job.mu.Unlock()
	}

	result := &Result{Horizon: model.Horizon, SampleCount: len(cases)}
	if len(cases) > 0 {
		n := float64(len(cases))
		result.MAE = sumAbs / n
		result.RMSE = math.Sqrt(sumSq / n)
	}
	r.finish(job, StateCompleted, "", result)
}

func (r *Runner) finish(job *Job, state State, errMsg string, result *Result) {
	job.mu.Lock()
	job.state = state
	job.err = errMsg
	job.result = result
	job.finishedAt = time.Now().UTC()
	job.mu.Unlock()

	metrics.BenchmarkJobs.WithLabelValues(string(state)).Inc()
	if state == StateFailed {
		log.Printf("benchmark: job %s failed: %s", job.id, errMsg)
	} else {
		log.Printf("benchmark: job %s completed over %d cases", job.id, result.SampleCount)
	}
}
