package ingest

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lox/weatherload/internal/metrics"
	"github.com/lox/weatherload/internal/models"
	"github.com/lox/weatherload/internal/store"
)

// Loader validates weather records and writes them to the store, logging
// rejects to validation_log.
type Loader struct {
	store *store.Store
	log   *zap.Logger
}

func NewLoader(st *store.Store, log *zap.Logger) *Loader {
	return &Loader{store: st, log: log}
}

// LoadResult tallies a batch load. Duplicates counts rows whose date was
// already stored; they are included in Inserted.
type LoadResult struct {
	Rows       int
	Inserted   int
	Skipped    int
	Duplicates int
}

// InsertRecord validates r and inserts it. It reports false for a record
// that was rejected or whose insert failed; both cases are written to
// validation_log and are not errors. A non-nil error means the store itself
// could not be used (no connection, the reject could not be logged, the
// commit failed).
func (l *Loader) InsertRecord(ctx context.Context, r models.Record) (bool, error) {
	outcome, err := l.insertRecord(ctx, r)
	if err != nil {
		return false, err
	}
	return outcome == metrics.OutcomeInserted || outcome == metrics.OutcomeDuplicate, nil
}

func (l *Loader) insertRecord(ctx context.Context, r models.Record) (string, error) {
	if r == nil {
		l.log.Warn("weather record is nil, not inserting")
		metrics.RecordsProcessed.WithLabelValues(metrics.OutcomeRejected).Inc()
		return metrics.OutcomeRejected, nil
	}

	var outcome string
	err := l.store.WithSession(ctx, func(se *store.Session) error {
		reason := Validate(r)
		var rec models.WeatherRecord
		if reason == "" {
			var err error
			if rec, err = ToWeatherRecord(r); err != nil {
				reason = unexpected(err)
			}
		}
		if reason != "" {
			if IsUnexpected(reason) {
				l.log.Error("validate weather record", zap.String("date", dateLabel(r)), zap.String("reason", reason))
			} else {
				l.log.Warn("weather record skipped", zap.String("date", dateLabel(r)), zap.String("reason", reason))
			}
			outcome = metrics.OutcomeRejected
			return l.logReject(ctx, se, r, reason)
		}

		day := rec.Date.Format(time.DateOnly)
		inserted, err := se.InsertWeather(ctx, rec)
		switch {
		case errors.Is(err, store.ErrCommit):
			l.log.Error("commit weather record", zap.String("date", day), zap.Error(err))
			return err
		case err != nil:
			l.log.Error("insert weather record", zap.String("date", day), zap.Error(err))
			outcome = metrics.OutcomeFailed
			return l.logReject(ctx, se, r, err.Error())
		case !inserted:
			l.log.Info("weather record already stored", zap.String("date", day))
			outcome = metrics.OutcomeDuplicate
		default:
			l.log.Info("weather record inserted", zap.String("date", day))
			outcome = metrics.OutcomeInserted
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.RecordsProcessed.WithLabelValues(outcome).Inc()
	return outcome, nil
}

func (l *Loader) logReject(ctx context.Context, se *store.Session, r models.Record, reason string) error {
	if err := se.InsertValidationLog(ctx, recordCountry(r), recordDate(r), reason); err != nil {
		l.log.Error("log validation error", zap.String("date", dateLabel(r)), zap.Error(err))
		return fmt.Errorf("log validation error: %w", err)
	}
	l.log.Info("validation error logged", zap.String("date", dateLabel(r)), zap.String("reason", reason))
	return nil
}

// LoadCSV reads the CSV file at path into memory and inserts every row.
// An empty file is not an error. A missing or malformed file is, and so is
// any store failure, which stops the load at that row.
func (l *Loader) LoadCSV(ctx context.Context, path string) (LoadResult, error) {
	var res LoadResult
	l.log.Info("starting history load", zap.String("path", path))
	start := time.Now()
	defer func() { metrics.LoadDuration.Observe(time.Since(start).Seconds()) }()

	records, err := readCSV(path)
	if err != nil {
		var parseErr *csv.ParseError
		switch {
		case errors.Is(err, fs.ErrNotExist):
			l.log.Error("file not found", zap.String("path", path))
		case errors.As(err, &parseErr):
			l.log.Error("read csv", zap.String("path", path), zap.Error(err))
		default:
			l.log.Error("unexpected error reading csv", zap.String("path", path), zap.Error(err))
		}
		return res, err
	}

	if len(records) == 0 {
		l.log.Warn("csv file is empty, no records inserted", zap.String("path", path))
		return res, nil
	}

	for _, r := range records {
		outcome, err := l.insertRecord(ctx, r)
		if err != nil {
			l.log.Error("history load aborted",
				zap.String("path", path),
				zap.Int("row", res.Rows+1),
				zap.Error(err))
			return res, fmt.Errorf("load %s row %d: %w", path, res.Rows+1, err)
		}
		res.Rows++
		switch outcome {
		case metrics.OutcomeInserted:
			res.Inserted++
		case metrics.OutcomeDuplicate:
			res.Inserted++
			res.Duplicates++
		default:
			res.Skipped++
		}
	}

	l.log.Info("history load complete",
		zap.String("path", path),
		zap.Int("inserted", res.Inserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("duplicates", res.Duplicates))
	return res, nil
}

// InsertJSON decodes a single JSON object and inserts it as one record.
func (l *Loader) InsertJSON(ctx context.Context, rd io.Reader) (bool, error) {
	dec := json.NewDecoder(rd)
	dec.UseNumber()

	var r models.Record
	if err := dec.Decode(&r); err != nil {
		l.log.Error("decode weather record", zap.Error(err))
		return false, fmt.Errorf("decode weather record: %w", err)
	}
	return l.InsertRecord(ctx, r)
}

func readCSV(path string) ([]models.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, name := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}

	records := make([]models.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		r := make(models.Record, len(header))
		for i, name := range header {
			r[name] = row[i]
		}
		records = append(records, r)
	}
	return records, nil
}
