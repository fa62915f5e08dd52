// Package file reads observations from a JSON fixture on disk.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/prepbufr-etl/internal/domain"
	"github.com/couchcryptid/prepbufr-etl/internal/observability"
)

// Source implements pipeline.Extractor over a fixture file. The file holds
// either a bare array of records or an API page object with an
// "observations" array.
type Source struct {
	path    string
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewSource creates a fixture reader for path.
func NewSource(path string, metrics *observability.Metrics, logger *slog.Logger) *Source {
	return &Source{path: path, metrics: metrics, logger: logger}
}

func (s *Source) Extract(ctx context.Context) ([]domain.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decode fixture %s: %w", s.path, err)
	}

	obs := make([]domain.Observation, 0, len(records))
	for _, rec := range records {
		o, err := rec.Observation()
		if err != nil {
			s.metrics.ObservationsRejected.Inc()
			s.logger.Debug("dropping observation", "error", err)
			continue
		}
		obs = append(obs, o)
	}

	obs = domain.Dedup(obs)
	s.logger.Info("observations loaded", "path", s.path, "count", len(obs))
	return obs, nil
}

func decodeRecords(data []byte) ([]domain.RawObservation, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []domain.RawObservation
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var p struct {
		Observations []domain.RawObservation `json:"observations"`
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return nil, err
	}
	return p.Observations, nil
}
