package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lox/weatherload/internal/metrics"
	"github.com/lox/weatherload/internal/models"
)

var requiredModelMetrics = []string{"accuracy", "precision", "recall", "f1_score"}

// LogModelMetrics records one model evaluation. Incomplete input (a missing
// metric, no path or no version) is logged as a warning and nothing is
// written; that is not an error. Values that are present but unusable, and
// store failures, are returned.
func (l *Loader) LogModelMetrics(ctx context.Context, m map[string]any, modelPath, modelVersion string) error {
	var missing []string
	for _, k := range requiredModelMetrics {
		if isMissing(m[k]) {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		l.log.Warn("model metrics not logged: missing or null fields", zap.Strings("fields", missing))
		return nil
	}
	if modelPath == "" || modelVersion == "" {
		l.log.Warn("model metrics not logged: model path or version is empty",
			zap.String("model_path", modelPath),
			zap.String("model_version", modelVersion))
		return nil
	}

	entry := models.ModelMetricsEntry{
		ModelVersion: modelVersion,
		ModelPath:    modelPath,
		IsValid:      true,
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"accuracy", &entry.Accuracy},
		{"precision", &entry.Precision},
		{"recall", &entry.Recall},
		{"f1_score", &entry.F1Score},
	} {
		v, err := toFloat(m[f.key])
		if err != nil {
			l.log.Error("log model metrics", zap.String("metric", f.key), zap.Error(err))
			return fmt.Errorf("model metric %s: %w", f.key, err)
		}
		*f.dst = v
	}

	if v, ok := m["is_valid"]; ok && !isMissing(v) {
		valid, err := toBool(v)
		if err != nil {
			l.log.Error("log model metrics", zap.String("metric", "is_valid"), zap.Error(err))
			return fmt.Errorf("model metric is_valid: %w", err)
		}
		entry.IsValid = valid
	}

	if err := l.store.InsertModelMetrics(ctx, entry); err != nil {
		return err
	}

	metrics.ModelMetricsLogged.Inc()
	l.log.Info("model metrics logged",
		zap.String("model_version", modelVersion),
		zap.String("model_path", modelPath))
	return nil
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("not a boolean: %q", x)
		}
		return b, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return false, err
	}
	return f != 0, nil
}
