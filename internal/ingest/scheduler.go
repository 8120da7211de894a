package ingest

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/metrics"
	"github.com/jlim/hazecast/internal/models"
	"github.com/jlim/hazecast/internal/predictor"
	"github.com/jlim/hazecast/internal/store"
	"github.com/jlim/hazecast/internal/validation"
)

// Scheduler drives the ingestion, prediction, and validation loops. Short
// horizons refresh on every prediction tick; the longer ones every other
// tick, matching how slowly their inputs move.
type Scheduler struct {
	store     *store.Store
	collector *Collector
	registry  *predictor.Registry
	engine    *validation.Engine
	assembler *features.Assembler

	ingestInterval   time.Duration
	weatherInterval  time.Duration
	predictInterval  time.Duration
	validateInterval time.Duration

	mu           sync.Mutex
	lastSuccess  map[string]time.Time
	lastFullScan time.Time
}

func NewScheduler(st *store.Store, collector *Collector, registry *predictor.Registry, engine *validation.Engine) *Scheduler {
	return &Scheduler{
		store:            st,
		collector:        collector,
		registry:         registry,
		engine:           engine,
		assembler:        features.NewAssembler(),
		ingestInterval:   15 * time.Minute,
		weatherInterval:  time.Hour,
		predictInterval:  3 * time.Hour,
		validateInterval: time.Hour,
		lastSuccess:      make(map[string]time.Time),
	}
}

func (s *Scheduler) Run(ctx context.Context) {
	s.ingestFiresAndReadings(ctx)
	s.ingestWeather(ctx)
	s.generatePredictions(ctx)
	s.runValidation(ctx)

	ingestTicker := time.NewTicker(s.ingestInterval)
	weatherTicker := time.NewTicker(s.weatherInterval)
	predictTicker := time.NewTicker(s.predictInterval)
	validateTicker := time.NewTicker(s.validateInterval)
	defer ingestTicker.Stop()
	defer weatherTicker.Stop()
	defer predictTicker.Stop()
	defer validateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("scheduler: shutting down")
			return
		case <-ingestTicker.C:
			s.ingestFiresAndReadings(ctx)
		case <-weatherTicker.C:
			s.ingestWeather(ctx)
		case <-predictTicker.C:
			s.generatePredictions(ctx)
		case <-validateTicker.C:
			s.runValidation(ctx)
		}
	}
}

func (s *Scheduler) markSuccess(source string) {
	s.mu.Lock()
	s.lastSuccess[source] = time.Now()
	s.mu.Unlock()
}

// sourceFresh reports whether a source succeeded recently enough for its
// stored data to stand in as current. The cutoff is twice the source's
// ingest cadence, so one missed cycle does not flag degradation.
func (s *Scheduler) sourceFresh(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	interval := s.ingestInterval
	if source == SourceWeather {
		interval = s.weatherInterval
	}
	last, ok := s.lastSuccess[source]
	return ok && time.Since(last) < 2*interval
}

func (s *Scheduler) ingestFiresAndReadings(ctx context.Context) {
	fires, err := s.collector.CollectFires(ctx)
	if err != nil {
		log.Printf("scheduler: fire ingest failed: %v", err)
	} else {
		n, err := s.store.InsertFireDetections(ctx, fires)
		if err != nil {
			log.Printf("scheduler: store fires: %v", err)
		} else {
			s.markSuccess(SourceFires)
			metrics.RecordsIngested.WithLabelValues(SourceFires).Add(float64(n))
			log.Printf("scheduler: ingested %d fire detections (%d fetched)", n, len(fires))
		}
	}

	readings, err := s.collector.CollectReadings(ctx)
	if err != nil {
		log.Printf("scheduler: pollutant ingest failed: %v", err)
		return
	}
	n, err := s.store.InsertPollutantReadings(ctx, readings)
	if err != nil {
		log.Printf("scheduler: store pollutants: %v", err)
		return
	}
	s.markSuccess(SourcePollutants)
	metrics.RecordsIngested.WithLabelValues(SourcePollutants).Add(float64(n))
	log.Printf("scheduler: ingested %d pollutant readings", n)
}

func (s *Scheduler) ingestWeather(ctx context.Context) {
	obs, err := s.collector.CollectWeather(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("scheduler: weather ingest failed: %v", err)
		return
	}
	n, err := s.store.InsertWeatherObservations(ctx, obs)
	if err != nil {
		log.Printf("scheduler: store weather: %v", err)
		return
	}
	s.markSuccess(SourceWeather)
	metrics.RecordsIngested.WithLabelValues(SourceWeather).Add(float64(n))
	log.Printf("scheduler: ingested %d weather rows", n)
}

// generatePredictions assembles one vector for "now" and runs every due
// horizon against it. A horizon with no model is logged and skipped; the
// rest still produce predictions.
func (s *Scheduler) generatePredictions(ctx context.Context) {
	now := time.Now().UTC()

	in, err := InputsAt(ctx, s.store, now, s.sourceFresh)
	if err != nil {
		log.Printf("scheduler: build inputs: %v", err)
		return
	}

	v := s.assembler.Assemble(now, in)
	for _, source := range v.Degraded {
		metrics.DegradedAssemblies.WithLabelValues(source).Inc()
		log.Printf("scheduler: assembling with degraded source %s", source)
	}
	fireRisk, windTransport, baseline := features.ComponentScores(v)

	horizons := s.dueHorizons(now)
	for _, h := range horizons {
		model, err := s.registry.Get(h)
		if err != nil {
			if errors.Is(err, predictor.ErrModelUnavailable) {
				log.Printf("scheduler: skipping horizon %s: %v", h, err)
				continue
			}
			log.Printf("scheduler: horizon %s: %v", h, err)
			continue
		}

		res, err := model.Predict(v)
		if err != nil {
			log.Printf("scheduler: predict %s: %v", h, err)
			continue
		}

		p := models.Prediction{
			CreatedAt:          now,
			TargetTimestamp:    now.Add(time.Duration(models.HorizonHours[h]) * time.Hour),
			Horizon:            h,
			PredictedPSI:       res.Point,
			ConfidenceLower:    res.Lower,
			ConfidenceUpper:    res.Upper,
			FireRiskScore:      fireRisk,
			WindTransportScore: windTransport,
			BaselineScore:      baseline,
			ModelVersion:       model.Version,
			DegradedSources:    strings.Join(v.Degraded, ","),
		}
		if err := s.store.AppendPrediction(ctx, &p); err != nil {
			log.Printf("scheduler: store prediction %s: %v", h, err)
			continue
		}
		metrics.PredictionsGenerated.WithLabelValues(h).Inc()
		log.Printf("scheduler: %s forecast %.1f [%.1f, %.1f] for %s",
			h, res.Point, res.Lower, res.Upper, p.TargetTimestamp.Format(time.RFC3339))
	}
}

// dueHorizons returns the horizons to refresh this tick: the shortest every
// tick, the rest every other one.
func (s *Scheduler) dueHorizons(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastFullScan) >= 2*s.predictInterval {
		s.lastFullScan = now
		return models.Horizons
	}
	return models.Horizons[:1]
}

func (s *Scheduler) runValidation(ctx context.Context) {
	n, err := s.engine.ScoreMatured(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("scheduler: validation: %v", err)
		return
	}
	if n > 0 {
		metrics.PredictionsScored.Add(float64(n))
		log.Printf("scheduler: scored %d matured predictions", n)
	}
}
