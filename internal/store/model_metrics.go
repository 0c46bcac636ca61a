package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lox/weatherload/internal/models"
)

// InsertModelMetrics appends one model evaluation row. Timestamp is set from
// the store clock; the caller decides IsValid.
func (s *Store) InsertModelMetrics(ctx context.Context, m models.ModelMetricsEntry) error {
	err := s.WithSession(ctx, func(se *Session) error {
		_, err := se.conn.ExecContext(ctx, se.dialect.rebind(`
			INSERT INTO model_metrics (
				timestamp, model_version, model_path,
				accuracy, precision, recall, f1_score, is_valid
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`), se.clock.Now().UTC(), m.ModelVersion, m.ModelPath,
			m.Accuracy, m.Precision, m.Recall, m.F1Score, m.IsValid)
		return err
	})
	if err != nil {
		s.log.Error("insert model metrics",
			zap.String("model_version", m.ModelVersion),
			zap.String("model_path", m.ModelPath),
			zap.Error(err))
		return fmt.Errorf("insert model metrics: %w", err)
	}
	return nil
}

func (s *Store) ModelMetrics(ctx context.Context) ([]models.ModelMetricsEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, model_version, model_path, accuracy, precision, recall, f1_score, is_valid
		FROM model_metrics
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ModelMetricsEntry
	for rows.Next() {
		var m models.ModelMetricsEntry
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.ModelVersion, &m.ModelPath,
			&m.Accuracy, &m.Precision, &m.Recall, &m.F1Score, &m.IsValid); err != nil {
			return nil, err
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}
