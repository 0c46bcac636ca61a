package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/weatherload/internal/models"
)

const insertWeatherSQL = `
INSERT INTO weather_data (country, date, avg_temp_c, max_temp_c, min_temp_c,
                          humidity, wind_kph, condition, chance_of_rain,
                          will_it_rain, totalprecip_mm, uv)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (date) DO NOTHING`

// InsertWeather writes rec in its own transaction. A row already stored for
// the same date is left untouched and reported as inserted == false with a
// nil error. Errors wrapping ErrCommit come from the commit; any other error
// means the statement failed and the transaction was rolled back.
func (se *Session) InsertWeather(ctx context.Context, rec models.WeatherRecord) (inserted bool, err error) {
	tx, err := se.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}

	res, err := tx.ExecContext(ctx, se.dialect.rebind(insertWeatherSQL),
		rec.Country, dateOnly(rec.Date), rec.AvgTempC, rec.MaxTempC, rec.MinTempC,
		rec.Humidity, rec.WindKph, rec.Condition, rec.ChanceOfRain,
		rec.WillItRain, rec.TotalPrecipMM, rec.UV)
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrCommit, err)
	}
	return n > 0, nil
}

// GetWeather returns the row stored for date, or nil if there is none.
func (s *Store) GetWeather(ctx context.Context, date time.Time) (*models.WeatherRecord, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, country, date, avg_temp_c, max_temp_c, min_temp_c, humidity, wind_kph,
		       condition, chance_of_rain, will_it_rain, totalprecip_mm, uv
		FROM weather_data
		WHERE date = ?
	`), dateOnly(date))

	var rec models.WeatherRecord
	err := row.Scan(&rec.ID, &rec.Country, &rec.Date, &rec.AvgTempC, &rec.MaxTempC, &rec.MinTempC,
		&rec.Humidity, &rec.WindKph, &rec.Condition, &rec.ChanceOfRain, &rec.WillItRain,
		&rec.TotalPrecipMM, &rec.UV)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) CountWeather(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM weather_data`).Scan(&n)
	return n, err
}

// dateOnly truncates t to midnight UTC so the same calendar day always
// binds to the same value.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
