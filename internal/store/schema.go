package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type tableDef struct {
	Name string
	// DDL takes the dialect's auto-increment primary key column type.
	DDL string
}

var (
	weatherTable = tableDef{
		Name: "weather_data",
		DDL: `
CREATE TABLE IF NOT EXISTS weather_data (
    id %s,
    country VARCHAR(100),
    date DATE UNIQUE,
    avg_temp_c FLOAT,
    max_temp_c FLOAT,
    min_temp_c FLOAT,
    humidity INTEGER,
    wind_kph FLOAT,
    condition VARCHAR(100),
    chance_of_rain INTEGER,
    will_it_rain INTEGER,
    totalprecip_mm FLOAT,
    uv FLOAT
);`,
	}

	validationLogTable = tableDef{
		Name: "validation_log",
		DDL: `
CREATE TABLE IF NOT EXISTS validation_log (
    id %s,
    timestamp TIMESTAMP,
    country VARCHAR(100),
    date DATE,
    reason TEXT
);`,
	}

	modelMetricsTable = tableDef{
		Name: "model_metrics",
		DDL: `
CREATE TABLE IF NOT EXISTS model_metrics (
    id %s,
    timestamp TIMESTAMP,
    model_version VARCHAR(100),
    model_path TEXT,
    accuracy FLOAT,
    precision FLOAT,
    recall FLOAT,
    f1_score FLOAT,
    is_valid BOOLEAN DEFAULT TRUE
);`,
	}
)

func (d Dialect) primaryKey() string {
	if d == DialectPostgres {
		return "SERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// InitSchema creates all three tables. The tables have no foreign keys, so
// order does not matter.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, create := range []func(context.Context) error{
		s.CreateWeatherTable,
		s.CreateValidationLogTable,
		s.CreateModelMetricsTable,
	} {
		if err := create(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) CreateWeatherTable(ctx context.Context) error {
	return s.createTable(ctx, weatherTable)
}

func (s *Store) CreateValidationLogTable(ctx context.Context) error {
	return s.createTable(ctx, validationLogTable)
}

func (s *Store) CreateModelMetricsTable(ctx context.Context) error {
	return s.createTable(ctx, modelMetricsTable)
}

func (s *Store) createTable(ctx context.Context, t tableDef) error {
	err := s.WithSession(ctx, func(se *Session) error {
		tx, err := se.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(t.DDL, s.dialect.primaryKey())); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		s.log.Error("create table", zap.String("table", t.Name), zap.Error(err))
		return fmt.Errorf("create table %s: %w", t.Name, err)
	}

	s.log.Info("table verified or created", zap.String("table", t.Name))
	return nil
}
