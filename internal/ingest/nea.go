package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jlim/hazecast/internal/httputil"
	"github.com/jlim/hazecast/internal/metrics"
	"github.com/jlim/hazecast/internal/models"
)

const neaPSIURL = "https://api.data.gov.sg/v1/environment/psi"

// NEAClient fetches the national PSI feed from data.gov.sg, which reports
// per region (north/south/east/west/central).
type NEAClient struct {
	baseURL string
	client  *http.Client
}

func NewNEAClient() *NEAClient {
	return &NEAClient{
		baseURL: neaPSIURL,
		client:  httputil.NewClient(),
	}
}

type neaResponse struct {
	Items []struct {
		Timestamp string                         `json:"timestamp"`
		Readings  map[string]map[string]*float64 `json:"readings"`
	} `json:"items"`
}

// FetchReadings returns the latest per-region readings plus a synthesized
// national row. The feed has no national aggregate, so the national PSI is
// the mean of the five regional values.
func (c *NEAClient) FetchReadings(ctx context.Context) ([]models.PollutantReading, error) {
	started := time.Now()
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
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
			return fmt.Errorf("nea: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("nea: status %d: %s", resp.StatusCode, string(b)))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("nea: read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		metrics.ProviderAPICallsTotal.WithLabelValues("nea", "error").Inc()
		return nil, err
	}
	metrics.ProviderAPICallsTotal.WithLabelValues("nea", "ok").Inc()
	metrics.ProviderAPILatency.WithLabelValues("nea").Observe(time.Since(started).Seconds())

	var data neaResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("nea: unmarshal: %w", err)
	}
	if len(data.Items) == 0 {
		return nil, nil
	}

	item := data.Items[len(data.Items)-1]
	ts, err := time.Parse(time.RFC3339, item.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("nea: parse timestamp %q: %w", item.Timestamp, err)
	}
	return regionalReadings(item.Readings, ts.UTC()), nil
}

func regionalReadings(readings map[string]map[string]*float64, ts time.Time) []models.PollutantReading {
	metric := func(name, region string) sql.NullFloat64 {
		byRegion, ok := readings[name]
		if !ok {
			return sql.NullFloat64{}
		}
		v, ok := byRegion[region]
		if !ok || v == nil {
			return sql.NullFloat64{}
		}
		return sql.NullFloat64{Float64: *v, Valid: true}
	}

	var out []models.PollutantReading
	var psiSum float64
	psiCount := 0

	for _, region := range models.CompassRegions {
		r := models.PollutantReading{
			Timestamp:   ts,
			Region:      region,
			PSI24h:      metric("psi_twenty_four_hourly", region),
			PM25_24h:    metric("pm25_twenty_four_hourly", region),
			PM10_24h:    metric("pm10_twenty_four_hourly", region),
			O3SubIndex:  metric("o3_sub_index", region),
			COSubIndex:  metric("co_sub_index", region),
			NO2OneHour:  metric("no2_one_hour_max", region),
			SO2SubIndex: metric("so2_twenty_four_hourly", region),
		}
		if r.PSI24h.Valid {
			psiSum += r.PSI24h.Float64
			psiCount++
		}
		out = append(out, r)
	}

	if psiCount > 0 {
		out = append(out, models.PollutantReading{
			Timestamp: ts,
			Region:    models.RegionNational,
			PSI24h:    sql.NullFloat64{Float64: psiSum / float64(psiCount), Valid: true},
		})
	}
	return out
}
