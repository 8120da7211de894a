package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/jlim/hazecast/internal/models"
)

// Source names used for availability tracking and prediction audit trails.
const (
	SourceFires      = "fires"
	SourceWeather    = "weather"
	SourcePollutants = "pollutants"
)

// Per-provider fetch deadline. One stalled provider never blocks the others
// past this.
const fetchTimeout = 60 * time.Second

// Trailing day window requested from the fire provider on each cycle.
const fireLookbackDays = 2

// Hours of forecast wind requested ahead of now, matching the transport
// simulation length.
const forecastWindowHours = 24

// FireProvider hands back satellite detections for a region and trailing
// window.
type FireProvider interface {
	FetchDetections(ctx context.Context, bbox BBox, days int) ([]models.FireDetection, error)
}

// WeatherProvider hands back hourly rows for a set of points over a range.
type WeatherProvider interface {
	FetchObservations(ctx context.Context, points []Point, from, to time.Time, mode Mode) ([]models.WeatherObservation, error)
}

// PollutantProvider hands back the latest per-region index readings.
type PollutantProvider interface {
	FetchReadings(ctx context.Context) ([]models.PollutantReading, error)
}

// Snapshot is the joined outcome of one collection cycle. A source that
// failed appears in Unavailable with its reason, which is a different thing
// from a source that succeeded and returned nothing.
type Snapshot struct {
	Fires       []models.FireDetection
	Weather     []models.WeatherObservation
	Readings    []models.PollutantReading
	Unavailable map[string]string
}

// Available reports whether a source's fetch succeeded this cycle.
func (s Snapshot) Available(source string) bool {
	_, failed := s.Unavailable[source]
	return !failed
}

// Collector fetches all three sources concurrently and joins the results.
type Collector struct {
	fires      FireProvider
	weather    WeatherProvider
	pollutants PollutantProvider

	bbox    BBox
	points  []Point
	timeout time.Duration
}

func NewCollector(fires FireProvider, weather WeatherProvider, pollutants PollutantProvider) *Collector {
	return &Collector{
		fires:      fires,
		weather:    weather,
		pollutants: pollutants,
		bbox:       DefaultBBox,
		points:     GridPoints(),
		timeout:    fetchTimeout,
	}
}

// CollectFires fetches the trailing fire detections with a deadline.
func (c *Collector) CollectFires(ctx context.Context) ([]models.FireDetection, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.fires.FetchDetections(ctx, c.bbox, fireLookbackDays)
}

// CollectWeather fetches forecast wind from now through the transport
// window.
func (c *Collector) CollectWeather(ctx context.Context, now time.Time) ([]models.WeatherObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.weather.FetchObservations(ctx, c.points, now, now.Add(forecastWindowHours*time.Hour), ModeForecast)
}

// CollectHistoricalWeather fetches archived wind over a past range, for
// training-set construction.
func (c *Collector) CollectHistoricalWeather(ctx context.Context, from, to time.Time) ([]models.WeatherObservation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.weather.FetchObservations(ctx, c.points, from, to, ModeHistorical)
}

// CollectReadings fetches the latest pollutant readings with a deadline.
func (c *Collector) CollectReadings(ctx context.Context) ([]models.PollutantReading, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.pollutants.FetchReadings(ctx)
}

// Collect runs all three fetches concurrently and waits for every one. Each
// source fails independently; the snapshot tags the failures so downstream
// feature assembly can degrade just the affected group.
func (c *Collector) Collect(ctx context.Context, now time.Time) Snapshot {
	snap := Snapshot{Unavailable: make(map[string]string)}

	var mu sync.Mutex
	fail := func(source string, err error) {
		mu.Lock()
		snap.Unavailable[source] = err.Error()
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		fires, err := c.CollectFires(ctx)
		if err != nil {
			fail(SourceFires, err)
			return
		}
		snap.Fires = fires
	}()
	go func() {
		defer wg.Done()
		weather, err := c.CollectWeather(ctx, now)
		if err != nil {
			fail(SourceWeather, err)
			return
		}
		snap.Weather = weather
	}()
	go func() {
		defer wg.Done()
		readings, err := c.CollectReadings(ctx)
		if err != nil {
			fail(SourcePollutants, err)
			return
		}
		snap.Readings = readings
	}()
	wg.Wait()

	return snap
}
