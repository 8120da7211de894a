package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jlim/hazecast/internal/httputil"
	"github.com/jlim/hazecast/internal/metrics"
	"github.com/jlim/hazecast/internal/models"
)

const firmsBaseURL = "https://firms.modaps.eosdis.nasa.gov/api/area/csv"

// DefaultBBox covers the Indonesian archipelago, the source region for
// transboundary haze.
var DefaultBBox = BBox{West: 95, South: -11, East: 141, North: 6}

// BBox is a lon/lat bounding box in the order the FIRMS area API expects.
type BBox struct {
	West  float64
	South float64
	East  float64
	North float64
}

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b.West, b.South, b.East, b.North)
}

// FIRMSClient fetches satellite fire detections from the NASA FIRMS area
// API, which returns CSV.
type FIRMSClient struct {
	apiKey    string
	satellite string
	baseURL   string
	client    *http.Client
}

func NewFIRMSClient(apiKey string) *FIRMSClient {
	return &FIRMSClient{
		apiKey:    apiKey,
		satellite: "VIIRS_SNPP_NRT",
		baseURL:   firmsBaseURL,
		client:    httputil.NewClient(),
	}
}

// FetchDetections returns detections inside bbox over the trailing day
// window (1-10 days).
func (c *FIRMSClient) FetchDetections(ctx context.Context, bbox BBox, days int) ([]models.FireDetection, error) {
	if days < 1 {
		days = 1
	}
	url := fmt.Sprintf("%s/%s/%s/%s/%d", c.baseURL, c.apiKey, c.satellite, bbox, days)

	started := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
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
			return fmt.Errorf("firms: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("firms: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("firms: read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.ProviderAPICallsTotal.WithLabelValues("firms", "error").Inc()
		return nil, err
	}
	metrics.ProviderAPICallsTotal.WithLabelValues("firms", "ok").Inc()
	metrics.ProviderAPILatency.WithLabelValues("firms").Observe(time.Since(started).Seconds())

	return parseFIRMSCSV(body, c.satellite)
}

func parseFIRMSCSV(body []byte, satellite string) ([]models.FireDetection, error) {
	records, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("firms: parse csv: %w", err)
	}
	if len(records) < 2 {
		// Header only, or nothing at all: a quiet window.
		return nil, nil
	}

	col := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		col[name] = i
	}
	for _, required := range []string{"latitude", "longitude", "acq_date", "acq_time"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("firms: csv missing column %q", required)
		}
	}

	cell := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return record[i]
	}

	var fires []models.FireDetection
	for line, record := range records[1:] {
		lat, err := strconv.ParseFloat(cell(record, "latitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("firms: line %d: latitude: %w", line+2, err)
		}
		lon, err := strconv.ParseFloat(cell(record, "longitude"), 64)
		if err != nil {
			return nil, fmt.Errorf("firms: line %d: longitude: %w", line+2, err)
		}
		acquired, err := parseAcquisition(cell(record, "acq_date"), cell(record, "acq_time"))
		if err != nil {
			return nil, fmt.Errorf("firms: line %d: %w", line+2, err)
		}

		f := models.FireDetection{
			Latitude:   lat,
			Longitude:  lon,
			Confidence: confidenceLabel(cell(record, "confidence")),
			AcquiredAt: acquired,
			Satellite:  satellite,
		}
		if v, err := strconv.ParseFloat(cell(record, "frp"), 64); err == nil {
			f.FRP = sql.NullFloat64{Float64: v, Valid: true}
		}
		if v, err := strconv.ParseFloat(cell(record, "bright_ti4"), 64); err == nil {
			f.Brightness = sql.NullFloat64{Float64: v, Valid: true}
		}
		fires = append(fires, f)
	}
	return fires, nil
}

// parseAcquisition combines the feed's acq_date (YYYY-MM-DD) and acq_time
// (HHMM, possibly unpadded) into a UTC timestamp.
func parseAcquisition(date, hhmm string) (time.Time, error) {
	for len(hhmm) < 4 {
		hhmm = "0" + hhmm
	}
	return time.Parse("2006-01-02 1504", date+" "+hhmm)
}

// confidenceLabel expands the VIIRS single-letter confidence codes.
func confidenceLabel(c string) string {
	switch strings.ToLower(c) {
	case "l":
		return "low"
	case "n":
		return "nominal"
	case "h":
		return "high"
	default:
		return strings.ToLower(c)
	}
}
