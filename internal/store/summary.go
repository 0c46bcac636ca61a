package store

import (
	"context"
	"fmt"

	"github.com/lox/weatherload/internal/models"
)

// Summary is a snapshot of what the store holds.
type Summary struct {
	WeatherRows    int
	Rejects        int
	LastReject     *models.ValidationLogEntry
	ModelRuns      int
	LatestModelRun *models.ModelMetricsEntry
}

func (s *Store) Summary(ctx context.Context) (Summary, error) {
	var sum Summary

	n, err := s.CountWeather(ctx)
	if err != nil {
		return sum, fmt.Errorf("count weather rows: %w", err)
	}
	sum.WeatherRows = n

	rejects, err := s.ValidationLog(ctx)
	if err != nil {
		return sum, fmt.Errorf("read validation log: %w", err)
	}
	sum.Rejects = len(rejects)
	if len(rejects) > 0 {
		sum.LastReject = &rejects[len(rejects)-1]
	}

	runs, err := s.ModelMetrics(ctx)
	if err != nil {
		return sum, fmt.Errorf("read model metrics: %w", err)
	}
	sum.ModelRuns = len(runs)
	if len(runs) > 0 {
		sum.LatestModelRun = &runs[len(runs)-1]
	}
	return sum, nil
}
