package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	kongdotenv "github.com/titusjaka/kong-dotenv-go"
	_ "modernc.org/sqlite"

	"github.com/jlim/hazecast/internal/benchmark"
	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/ingest"
	"github.com/jlim/hazecast/internal/models"
	"github.com/jlim/hazecast/internal/predictor"
	"github.com/jlim/hazecast/internal/store"
	"github.com/jlim/hazecast/internal/validation"
)

type cli struct {
	DB        string `env:"HAZECAST_DB" default:"data/hazecast.db" help:"Path to the SQLite database."`
	ModelsDir string `env:"HAZECAST_MODELS" default:"data/models" help:"Directory holding fitted model artifacts."`
	FIRMSKey  string `env:"FIRMS_API_KEY" help:"NASA FIRMS map key for the fire detection API."`

	Serve     serveCmd     `cmd:"" help:"Run the ingestion, prediction, and validation loops."`
	Ingest    ingestCmd    `cmd:"" help:"Fetch all sources once and store the results."`
	Train     trainCmd     `cmd:"" help:"Build the training table from stored data and fit per-horizon models."`
	Evaluate  evaluateCmd  `cmd:"" help:"Report accuracy, alert quality, and drift from scored predictions."`
	Benchmark benchmarkCmd `cmd:"" help:"Evaluate a model artifact over a cached feature table."`
}

// app carries the wired dependencies into each subcommand.
type app struct {
	store     *store.Store
	collector *ingest.Collector
	registry  *predictor.Registry
	files     *predictor.FileStore
	engine    *validation.Engine
}

func main() {
	var flags cli
	ktx := kong.Parse(&flags,
		kong.Name("hazecast"),
		kong.Description("Haze index forecasting for Singapore from satellite fire, wind, and pollutant data."),
		kong.Configuration(kongdotenv.ENVFileReader, ".env"),
	)

	db, err := sql.Open("sqlite", flags.DB)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	files := predictor.NewFileStore(flags.ModelsDir)
	a := &app{
		store: st,
		collector: ingest.NewCollector(
			ingest.NewFIRMSClient(flags.FIRMSKey),
			ingest.NewOpenMeteoClient(),
			ingest.NewNEAClient(),
		),
		registry: predictor.NewRegistry(files),
		files:    files,
		engine:   validation.NewEngine(st),
	}

	ktx.FatalIfErrorf(ktx.Run(a))
}

type serveCmd struct {
	MetricsAddr string `default:":9090" help:"Listen address for the Prometheus metrics endpoint."`
}

func (c *serveCmd) Run(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.registry.LoadAll(models.Horizons)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("serve: metrics on %s", c.MetricsAddr)
		if err := http.ListenAndServe(c.MetricsAddr, mux); err != nil {
			log.Printf("serve: metrics listener: %v", err)
		}
	}()

	scheduler := ingest.NewScheduler(a.store, a.collector, a.registry, a.engine)
	scheduler.Run(ctx)
	return nil
}

type ingestCmd struct{}

func (c *ingestCmd) Run(a *app) error {
	ctx := context.Background()
	now := time.Now().UTC()

	snap := a.collector.Collect(ctx, now)
	for source, reason := range snap.Unavailable {
		log.Printf("ingest: %s unavailable: %s", source, reason)
	}

	if snap.Available(ingest.SourceFires) {
		n, err := a.store.InsertFireDetections(ctx, snap.Fires)
		if err != nil {
			return fmt.Errorf("store fires: %w", err)
		}
		log.Printf("ingest: %d fire detections", n)
	}
	if snap.Available(ingest.SourceWeather) {
		n, err := a.store.InsertWeatherObservations(ctx, snap.Weather)
		if err != nil {
			return fmt.Errorf("store weather: %w", err)
		}
		log.Printf("ingest: %d weather rows", n)
	}
	if snap.Available(ingest.SourcePollutants) {
		n, err := a.store.InsertPollutantReadings(ctx, snap.Readings)
		if err != nil {
			return fmt.Errorf("store pollutants: %w", err)
		}
		log.Printf("ingest: %d pollutant readings", n)
	}
	return nil
}

type trainCmd struct {
	From    time.Time `format:"2006-01-02" required:"" help:"First reference date of the training range."`
	To      time.Time `format:"2006-01-02" required:"" help:"Last reference date of the training range."`
	Step    int       `default:"6" help:"Hours between training reference timestamps."`
	Workers int       `default:"8" help:"Parallel feature-build workers."`
	Cache   string    `default:"data/features.csv" help:"Feature cache file; reused when its schema matches."`
	Version string    `default:"" help:"Model version label; defaults to the current date."`
}

func (c *trainCmd) Run(a *app) error {
	ctx := context.Background()
	version := c.Version
	if version == "" {
		version = "v" + time.Now().UTC().Format("2006-01-02")
	}

	cache := predictor.NewFeatureCache(c.Cache)
	rows, err := cache.Read()
	if err != nil {
		log.Printf("train: rebuilding feature table (%v)", err)
		rows, err = c.buildRows(ctx, a)
		if err != nil {
			return err
		}
		if err := cache.Write(rows); err != nil {
			return fmt.Errorf("write cache: %w", err)
		}
		log.Printf("train: cached %d rows to %s", len(rows), c.Cache)
	} else {
		log.Printf("train: reusing %d cached rows from %s", len(rows), c.Cache)
	}

	fitted := predictor.TrainAll(rows, version)
	if len(fitted) == 0 {
		return fmt.Errorf("train: no horizon could be fitted")
	}
	for _, m := range fitted {
		if err := a.files.Save(m); err != nil {
			return fmt.Errorf("save %s: %w", m.Horizon, err)
		}
	}
	log.Printf("train: saved %d model artifacts", len(fitted))
	return nil
}

func (c *trainCmd) buildRows(ctx context.Context, a *app) ([]predictor.TrainingRow, error) {
	var refs []time.Time
	for ref := c.From.UTC(); !ref.After(c.To.UTC()); ref = ref.Add(time.Duration(c.Step) * time.Hour) {
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("train: empty reference range")
	}

	// Targets can mature up to the longest horizon past the last reference.
	longest := time.Duration(models.HorizonHours["7d"]) * time.Hour
	readings, err := a.store.PollutantReadingsBetween(ctx, models.RegionNational, c.From.UTC(), c.To.UTC().Add(longest+6*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	inputsFor := func(ref time.Time) features.Inputs {
		in, err := ingest.InputsAt(ctx, a.store, ref, nil)
		if err != nil {
			log.Printf("train: inputs at %s: %v", ref.Format(time.RFC3339), err)
			return features.Inputs{}
		}
		return in
	}

	log.Printf("train: assembling %d reference timestamps with %d workers", len(refs), c.Workers)
	return predictor.BuildDataset(ctx, refs, c.Workers, inputsFor, readings), nil
}

type evaluateCmd struct {
	Days int `default:"30" help:"Length in days of the current evaluation window."`
}

func (c *evaluateCmd) Run(a *app) error {
	ctx := context.Background()
	now := time.Now().UTC()
	window := time.Duration(c.Days) * 24 * time.Hour

	for _, h := range models.Horizons {
		current, err := a.store.ScoredPredictions(ctx, h, now.Add(-window), now)
		if err != nil {
			return err
		}
		baseline, err := a.store.ScoredPredictions(ctx, h, now.Add(-2*window), now.Add(-window))
		if err != nil {
			return err
		}

		summary := validation.Regression(current)
		if summary.SampleCount == 0 {
			fmt.Printf("%s: no scored predictions in the last %d days\n", h, c.Days)
			continue
		}

		alerts := validation.AlertClassification(current)
		fmt.Printf("%s: n=%d mae=%.2f rmse=%.2f r2=%.3f mape=%.1f%% coverage=%.0f%%\n",
			h, summary.SampleCount, summary.MAE, summary.RMSE, summary.R2, summary.MAPE,
			100*summary.IntervalCoverage)
		fmt.Printf("%s: alerts precision=%.2f recall=%.2f f1=%.2f\n", h, alerts.Precision, alerts.Recall, alerts.F1)
		for band, acc := range validation.BandAccuracy(current) {
			fmt.Printf("%s: band %s accuracy=%.2f\n", h, band, acc)
		}

		baseSummary := validation.Regression(baseline)
		if baseSummary.SampleCount > 0 {
			report := validation.DetectDrift(baseSummary, summary)
			fmt.Printf("%s: drift significant=%v (%s)\n", h, report.Significant, report.Recommendation)
		}
	}
	return nil
}

type benchmarkCmd struct {
	Horizon string `default:"24h" enum:"24h,48h,72h,7d" help:"Horizon model to benchmark."`
	Cache   string `default:"data/features.csv" help:"Feature cache file holding the labelled rows."`
}

func (c *benchmarkCmd) Run(a *app) error {
	rows, err := predictor.NewFeatureCache(c.Cache).Read()
	if err != nil {
		return err
	}
	model, err := a.files.Load(c.Horizon)
	if err != nil {
		return err
	}

	runner := benchmark.NewRunner()
	job := runner.Submit(context.Background(), model, rows)

	for {
		s := job.Snapshot()
		switch s.State {
		case benchmark.StateCompleted:
			fmt.Printf("job %s: %d cases, mae=%.2f rmse=%.2f\n", s.ID, s.Result.SampleCount, s.Result.MAE, s.Result.RMSE)
			return nil
		case benchmark.StateFailed:
			return fmt.Errorf("job %s failed: %s", s.ID, s.Error)
		default:
			log.Printf("benchmark: %s %d/%d", s.State, s.Completed, s.Total)
			time.Sleep(500 * time.Millisecond)
		}
	}
}
