package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jlim/hazecast/internal/httputil"
	"github.com/jlim/hazecast/internal/metrics"
	"github.com/jlim/hazecast/internal/models"
)

const (
	openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"
	openMeteoArchiveURL  = "https://archive-api.open-meteo.com/v1/era5"

	openMeteoHourlyParams = "wind_speed_10m,wind_direction_10m,temperature_2m,relative_humidity_2m,pressure_msl"
)

// Mode selects which Open-Meteo endpoint serves the request.
type Mode string

const (
	ModeHistorical Mode = "historical"
	ModeForecast   Mode = "forecast"
)

// Point is one weather grid location.
type Point struct {
	Lat float64
	Lon float64
}

// GridPoints are the wind sampling locations: the city plus a coarse grid
// over the fire source regions of Sumatra and Kalimantan, so every likely
// cluster centroid has a nearby series.
func GridPoints() []Point {
	points := []Point{{Lat: 1.3521, Lon: 103.8198}}
	for lat := -6.0; lat <= 4.0; lat += 2.5 {
		for lon := 96.0; lon <= 118.0; lon += 4.0 {
			points = append(points, Point{Lat: lat, Lon: lon})
		}
	}
	return points
}

// OpenMeteoClient fetches hourly wind and atmosphere data. Forecast mode
// serves future hours; historical mode replays archived reanalysis data for
// training-set construction.
type OpenMeteoClient struct {
	forecastURL string
	archiveURL  string
	client      *http.Client
}

func NewOpenMeteoClient() *OpenMeteoClient {
	return &OpenMeteoClient{
		forecastURL: openMeteoForecastURL,
		archiveURL:  openMeteoArchiveURL,
		client:      httputil.NewClient(),
	}
}

type openMeteoResponse struct {
	Hourly struct {
		Time          []string   `json:"time"`
		WindSpeed     []*float64 `json:"wind_speed_10m"`
		WindDirection []*float64 `json:"wind_direction_10m"`
		Temperature   []*float64 `json:"temperature_2m"`
		Humidity      []*float64 `json:"relative_humidity_2m"`
		Pressure      []*float64 `json:"pressure_msl"`
	} `json:"hourly"`
}

// FetchObservations returns hourly rows for every point over [from, to].
// Points are fetched sequentially; the API rate limit is generous enough for
// the grid, and the backoff handles the occasional throttle.
func (c *OpenMeteoClient) FetchObservations(ctx context.Context, points []Point, from, to time.Time, mode Mode) ([]models.WeatherObservation, error) {
	var all []models.WeatherObservation
	for _, p := range points {
		obs, err := c.fetchPoint(ctx, p, from, to, mode)
		if err != nil {
			return nil, err
		}
		all = append(all, obs...)
	}
	return all, nil
}

func (c *OpenMeteoClient) fetchPoint(ctx context.Context, p Point, from, to time.Time, mode Mode) ([]models.WeatherObservation, error) {
	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%g", p.Lat))
	params.Set("longitude", fmt.Sprintf("%g", p.Lon))
	params.Set("hourly", openMeteoHourlyParams)
	params.Set("timezone", "UTC")
	params.Set("wind_speed_unit", "kmh")

	endpoint := c.forecastURL
	if mode == ModeHistorical {
		endpoint = c.archiveURL
		params.Set("start_date", from.UTC().Format("2006-01-02"))
		params.Set("end_date", to.UTC().Format("2006-01-02"))
	} else {
		days := int(to.Sub(from).Hours()/24) + 1
		if days < 1 {
			days = 1
		}
		params.Set("forecast_days", fmt.Sprintf("%d", days))
	}

	started := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("openmeteo: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("openmeteo: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("openmeteo: read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.ProviderAPICallsTotal.WithLabelValues("openmeteo", "error").Inc()
		return nil, err
	}
	metrics.ProviderAPICallsTotal.WithLabelValues("openmeteo", "ok").Inc()
	metrics.ProviderAPILatency.WithLabelValues("openmeteo").Observe(time.Since(started).Seconds())

	var data openMeteoResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("openmeteo: unmarshal: %w", err)
	}

	return hourlyToObservations(data, p, from, to, mode == ModeForecast)
}

func hourlyToObservations(data openMeteoResponse, p Point, from, to time.Time, isForecast bool) ([]models.WeatherObservation, error) {
	at := func(series []*float64, i int) sql.NullFloat64 {
		if i >= len(series) || series[i] == nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: *series[i], Valid: true}
	}

	var obs []models.WeatherObservation
	for i, raw := range data.Hourly.Time {
		ts, err := time.Parse("2006-01-02T15:04", raw)
		if err != nil {
			return nil, fmt.Errorf("openmeteo: parse time %q: %w", raw, err)
		}
		ts = ts.UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		obs = append(obs, models.WeatherObservation{
			Timestamp:     ts,
			Latitude:      p.Lat,
			Longitude:     p.Lon,
			WindSpeed:     at(data.Hourly.WindSpeed, i),
			WindDirection: at(data.Hourly.WindDirection, i),
			Temperature:   at(data.Hourly.Temperature, i),
			Humidity:      at(data.Hourly.Humidity, i),
			Pressure:      at(data.Hourly.Pressure, i),
			IsForecast:    isForecast,
		})
	}
	return obs, nil
}
