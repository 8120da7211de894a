package predictor

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jlim/hazecast/internal/features"
	"github.com/jlim/hazecast/internal/models"
)

// FeatureCache persists an assembled training table as CSV so dataset builds
// can be resumed without refetching source data. The header carries the full
// column set; a reader whose assembler schema differs rejects the file
// outright instead of reinterpreting columns.
type FeatureCache struct {
	Path string
}

func NewFeatureCache(path string) *FeatureCache {
	return &FeatureCache{Path: path}
}

func cacheHeader() []string {
	header := []string{"reference_timestamp"}
	header = append(header, features.Columns...)
	for _, h := range models.Horizons {
		header = append(header, "target_"+h)
	}
	return header
}

// Write replaces the cache file with the given rows. Horizons with no
// realized target are written as empty cells.
func (c *FeatureCache) Write(rows []TrainingRow) error {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("feature cache: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cacheHeader()); err != nil {
		return fmt.Errorf("feature cache: %w", err)
	}

	record := make([]string, 0, len(cacheHeader()))
	for _, row := range rows {
		record = record[:0]
		record = append(record, row.Vector.ReferenceTime.UTC().Format(time.RFC3339))
		for _, v := range row.Vector.Values {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		for _, h := range models.Horizons {
			if target, ok := row.Targets[h]; ok {
				record = append(record, strconv.FormatFloat(target, 'g', -1, 64))
			} else {
				record = append(record, "")
			}
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("feature cache: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("feature cache: %w", err)
	}
	return f.Close()
}

// Read loads the cached table. A header whose feature columns differ in any
// way from the current assembler schema fails with ErrSchemaMismatch; the
// caller regenerates the cache rather than guessing at a column mapping.
func (c *FeatureCache) Read() ([]TrainingRow, error) {
	f, err := os.Open(c.Path)
	if err != nil {
		return nil, fmt.Errorf("feature cache: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("feature cache: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("feature cache: %s is empty", c.Path)
	}

	want := cacheHeader()
	header := records[0]
	if len(header) != len(want) {
		return nil, fmt.Errorf("%w: cache has %d columns, want %d", ErrSchemaMismatch, len(header), len(want))
	}
	for i := range want {
		if header[i] != want[i] {
			return nil, fmt.Errorf("%w: cache column %d is %q, want %q", ErrSchemaMismatch, i, header[i], want[i])
		}
	}

	rows := make([]TrainingRow, 0, len(records)-1)
	for line, record := range records[1:] {
		ref, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("feature cache: line %d: %w", line+2, err)
		}

		row := TrainingRow{
			Vector: features.Vector{
				ReferenceTime: ref,
				Values:        make([]float64, len(features.Columns)),
			},
			Targets: make(map[string]float64, len(models.Horizons)),
		}
		for j := range features.Columns {
			v, err := strconv.ParseFloat(record[1+j], 64)
			if err != nil {
				return nil, fmt.Errorf("feature cache: line %d: %w", line+2, err)
			}
			row.Vector.Values[j] = v
		}
		for k, h := range models.Horizons {
			cell := record[1+len(features.Columns)+k]
			if cell == "" {
				continue
			}
			target, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("feature cache: line %d: %w", line+2, err)
			}
			row.Targets[h] = target
		}
		rows = append(rows, row)
	}
	return rows, nil
}
