package ingest

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"

	"github.com/lox/weatherload/internal/metrics"
	"github.com/lox/weatherload/internal/models"
	"github.com/lox/weatherload/internal/store"
)

var csvHeader = []string{
	"country", "date", "avg_temp_c", "max_temp_c", "min_temp_c", "humidity", "wind_kph",
	"condition", "chance_of_rain", "will_it_rain", "totalprecip_mm", "uv",
}

type testEnv struct {
	loader *Loader
	store  *store.Store
	db     *sql.DB
	logs   *observer.ObservedLogs
}

func setupLoader(t *testing.T) *testEnv {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	st := store.New(db, store.DialectSQLite, log, clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)))
	require.NoError(t, st.InitSchema(context.Background()))

	return &testEnv{loader: NewLoader(st, log), store: st, db: db, logs: logs}
}

func (e *testEnv) weatherCount(t *testing.T) int {
	t.Helper()
	n, err := e.store.CountWeather(context.Background())
	require.NoError(t, err)
	return n
}

func (e *testEnv) validationLog(t *testing.T) []models.ValidationLogEntry {
	t.Helper()
	entries, err := e.store.ValidationLog(context.Background())
	require.NoError(t, err)
	return entries
}

func writeCSV(t *testing.T, rows [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weather.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
	return path
}

func loadDurationCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.LoadDuration.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

func csvRow(date string, humidity string) []string {
	return []string{"Chile", date, "20", "25", "15", humidity, "10", "Sunny", "10", "0", "0", "5"}
}

func TestInsertRecord_Valid(t *testing.T) {
	env := setupLoader(t)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues(metrics.OutcomeInserted))

	ok, err := env.loader.InsertRecord(ctx, validRecord())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, env.weatherCount(t))
	assert.Empty(t, env.validationLog(t))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues(metrics.OutcomeInserted)))

	got, err := env.store.GetWeather(ctx, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Chile", got.Country)
	assert.Equal(t, 50, got.Humidity)
}

func TestInsertRecord_Invalid(t *testing.T) {
	env := setupLoader(t)

	before := testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues(metrics.OutcomeRejected))

	ok, err := env.loader.InsertRecord(context.Background(), with("humidity", 150))
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, env.weatherCount(t))
	entries := env.validationLog(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ReasonHumidityRange, entries[0].Reason)
	assert.Equal(t, "Chile", entries[0].Country)
	assert.True(t, entries[0].Date.Valid)

	assert.Equal(t, 1, env.logs.FilterMessage("weather record skipped").FilterLevelExact(zapcore.WarnLevel).Len())
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RecordsProcessed.WithLabelValues(metrics.OutcomeRejected)))
}

func TestInsertRecord_InvalidDateLoggedWithoutDate(t *testing.T) {
	env := setupLoader(t)

	ok, err := env.loader.InsertRecord(context.Background(), with("date", "not-a-date"))
	require.NoError(t, err)
	assert.False(t, ok)

	entries := env.validationLog(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ReasonDateInvalid, entries[0].Reason)
	assert.False(t, entries[0].Date.Valid)
}

func TestInsertRecord_Nil(t *testing.T) {
	env := setupLoader(t)

	ok, err := env.loader.InsertRecord(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Empty(t, env.validationLog(t))
	assert.Equal(t, 1, env.logs.FilterLevelExact(zapcore.WarnLevel).Len())
}

func TestInsertRecord_DuplicateDate(t *testing.T) {
	env := setupLoader(t)
	ctx := context.Background()

	ok, err := env.loader.InsertRecord(ctx, validRecord())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.loader.InsertRecord(ctx, with("country", "Peru"))
	require.NoError(t, err)
	assert.True(t, ok, "a date conflict is not a failure")

	assert.Equal(t, 1, env.weatherCount(t))
	assert.Empty(t, env.validationLog(t))
}

func TestInsertRecord_InsertFailureIsLogged(t *testing.T) {
	env := setupLoader(t)

	_, err := env.db.Exec(`DROP TABLE weather_data`)
	require.NoError(t, err)

	ok, err := env.loader.InsertRecord(context.Background(), validRecord())
	require.NoError(t, err)
	assert.False(t, ok)

	entries := env.validationLog(t)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Reason, "weather_data")
	assert.Equal(t, 1, env.logs.FilterMessage("insert weather record").Len())
}

func TestInsertRecord_RejectLogFailureIsReturned(t *testing.T) {
	env := setupLoader(t)

	_, err := env.db.Exec(`DROP TABLE validation_log`)
	require.NoError(t, err)

	_, err = env.loader.InsertRecord(context.Background(), with("uv", 40))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log validation error")
}

func TestInsertRecord_ConnectionFailure(t *testing.T) {
	env := setupLoader(t)
	require.NoError(t, env.db.Close())

	_, err := env.loader.InsertRecord(context.Background(), validRecord())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connect to database")
}

func TestInsertJSON(t *testing.T) {
	env := setupLoader(t)
	ctx := context.Background()

	body := `{"country":"Chile","date":"2024-02-10","avg_temp_c":21.5,"max_temp_c":27,"min_temp_c":14,
		"humidity":45,"wind_kph":8.6,"condition":"Partly cloudy","chance_of_rain":0,"will_it_rain":0,
		"totalprecip_mm":0,"uv":7}`
	ok, err := env.loader.InsertJSON(ctx, strings.NewReader(body))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, env.weatherCount(t))

	ok, err = env.loader.InsertJSON(ctx, strings.NewReader(`null`))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.loader.InsertJSON(ctx, strings.NewReader(`{"country":`))
	require.Error(t, err)
}

func TestLoadCSV_TalliesRows(t *testing.T) {
	env := setupLoader(t)

	rows := [][]string{csvHeader}
	for i := 1; i <= 10; i++ {
		humidity := "50"
		if i%3 == 0 {
			humidity = "150"
		}
		rows = append(rows, csvRow(time.Date(2024, 1, i, 0, 0, 0, 0, time.UTC).Format(time.DateOnly), humidity))
	}
	path := writeCSV(t, rows)

	res, err := env.loader.LoadCSV(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 10, res.Rows)
	assert.Equal(t, 7, res.Inserted)
	assert.Equal(t, 3, res.Skipped)
	assert.Zero(t, res.Duplicates)
	assert.Equal(t, 7, env.weatherCount(t))
	assert.Len(t, env.validationLog(t), 3)
}

func TestLoadCSV_DuplicateDates(t *testing.T) {
	env := setupLoader(t)

	path := writeCSV(t, [][]string{
		csvHeader,
		csvRow("2024-01-01", "50"),
		csvRow("2024-01-01", "60"),
		csvRow("2024-01-02", "70"),
	})

	res, err := env.loader.LoadCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)
	assert.Zero(t, res.Skipped)
	assert.Equal(t, 2, env.weatherCount(t))
}

func TestLoadCSV_EmptyCellsAreNull(t *testing.T) {
	env := setupLoader(t)

	row := csvRow("2024-01-01", "50")
	row[7] = ""
	path := writeCSV(t, [][]string{csvHeader, row})

	res, err := env.loader.LoadCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	entries := env.validationLog(t)
	require.Len(t, entries, 1)
	assert.Equal(t, ReasonRequiredNull, entries[0].Reason)
}

func TestLoadCSV_NACellsAreNull(t *testing.T) {
	env := setupLoader(t)

	path := writeCSV(t, [][]string{
		csvHeader,
		csvRow("2024-01-01", "NaN"),
		csvRow("2024-01-02", "NA"),
		csvRow("2024-01-03", "50"),
	})

	res, err := env.loader.LoadCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, env.weatherCount(t))

	entries := env.validationLog(t)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, ReasonRequiredNull, e.Reason)
	}

	got, err := env.store.GetWeather(context.Background(), time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 50, got.Humidity)
}

func TestLoadCSV_Empty(t *testing.T) {
	env := setupLoader(t)

	empty := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	headerOnly := writeCSV(t, [][]string{csvHeader})

	for _, path := range []string{empty, headerOnly} {
		res, err := env.loader.LoadCSV(context.Background(), path)
		require.NoError(t, err)
		assert.Equal(t, LoadResult{}, res)
	}
	assert.Equal(t, 2, env.logs.FilterMessage("csv file is empty, no records inserted").Len())
}

func TestLoadCSV_FileNotFound(t *testing.T) {
	env := setupLoader(t)

	_, err := env.loader.LoadCSV(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Equal(t, 1, env.logs.FilterMessage("file not found").Len())
}

func TestLoadCSV_ParseError(t *testing.T) {
	env := setupLoader(t)

	path := filepath.Join(t.TempDir(), "bad.csv")
	content := strings.Join(csvHeader, ",") + "\nChile,2024-01-01,20\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := env.loader.LoadCSV(context.Background(), path)
	require.Error(t, err)
	var parseErr *csv.ParseError
	assert.True(t, errors.As(err, &parseErr))
	assert.Zero(t, env.weatherCount(t))
}

func TestLoadCSV_StoreFailureAbortsBatch(t *testing.T) {
	env := setupLoader(t)

	_, err := env.db.Exec(`DROP TABLE validation_log`)
	require.NoError(t, err)

	path := writeCSV(t, [][]string{
		csvHeader,
		csvRow("2024-01-01", "50"),
		csvRow("2024-01-02", "150"),
		csvRow("2024-01-03", "50"),
	})

	before := loadDurationCount(t)

	res, err := env.loader.LoadCSV(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, 1, env.weatherCount(t))
	assert.Equal(t, before+1, loadDurationCount(t))
}

func TestLoadCSV_DurationObservedOnFailure(t *testing.T) {
	env := setupLoader(t)

	before := loadDurationCount(t)
	_, err := env.loader.LoadCSV(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Equal(t, before+1, loadDurationCount(t))

	path := writeCSV(t, [][]string{csvHeader, csvRow("2024-01-01", "50")})
	_, err = env.loader.LoadCSV(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, before+2, loadDurationCount(t))
}

func TestLogModelMetrics(t *testing.T) {
	env := setupLoader(t)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.ModelMetricsLogged)

	err := env.loader.LogModelMetrics(ctx, map[string]any{
		"accuracy":  0.92,
		"precision": 0.9,
		"recall":    0.81,
		"f1_score":  0.85,
	}, "/models/rain_v3.pkl", "v3")
	require.NoError(t, err)

	entries, err := env.store.ModelMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v3", entries[0].ModelVersion)
	assert.Equal(t, "/models/rain_v3.pkl", entries[0].ModelPath)
	assert.InDelta(t, 0.92, entries[0].Accuracy, 1e-9)
	assert.True(t, entries[0].IsValid)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ModelMetricsLogged))
}

func TestLogModelMetrics_IsValidSupplied(t *testing.T) {
	env := setupLoader(t)
	ctx := context.Background()

	err := env.loader.LogModelMetrics(ctx, map[string]any{
		"accuracy": 0.5, "precision": 0.5, "recall": 0.5, "f1_score": 0.5, "is_valid": false,
	}, "/models/bad.pkl", "v0")
	require.NoError(t, err)

	entries, err := env.store.ModelMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].IsValid)
}

func TestLogModelMetrics_Incomplete(t *testing.T) {
	complete := func() map[string]any {
		return map[string]any{"accuracy": 0.9, "precision": 0.8, "recall": 0.7, "f1_score": 0.75}
	}
	missingPrecision := complete()
	delete(missingPrecision, "precision")
	nullRecall := complete()
	nullRecall["recall"] = nil

	tests := []struct {
		name    string
		metrics map[string]any
		path    string
		version string
	}{
		{name: "precision missing", metrics: missingPrecision, path: "/m.pkl", version: "v1"},
		{name: "recall null", metrics: nullRecall, path: "/m.pkl", version: "v1"},
		{name: "nil metrics", metrics: nil, path: "/m.pkl", version: "v1"},
		{name: "no path", metrics: complete(), path: "", version: "v1"},
		{name: "no version", metrics: complete(), path: "/m.pkl", version: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupLoader(t)
			ctx := context.Background()

			require.NoError(t, env.loader.LogModelMetrics(ctx, tt.metrics, tt.path, tt.version))

			entries, err := env.store.ModelMetrics(ctx)
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Equal(t, 1, env.logs.FilterLevelExact(zapcore.WarnLevel).Len())
		})
	}
}

func TestLogModelMetrics_BadValue(t *testing.T) {
	env := setupLoader(t)

	err := env.loader.LogModelMetrics(context.Background(), map[string]any{
		"accuracy": "high", "precision": 0.8, "recall": 0.7, "f1_score": 0.75,
	}, "/m.pkl", "v1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accuracy")
}

func TestLogModelMetrics_StoreFailure(t *testing.T) {
	env := setupLoader(t)

	_, err := env.db.Exec(`DROP TABLE model_metrics`)
	require.NoError(t, err)

	err = env.loader.LogModelMetrics(context.Background(), map[string]any{
		"accuracy": 0.9, "precision": 0.8, "recall": 0.7, "f1_score": 0.75,
	}, "/m.pkl", "v1")
	require.Error(t, err)
}
