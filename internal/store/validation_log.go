package store

import (
	"context"
	"database/sql"

	"github.com/lox/weatherload/internal/models"
)

// InsertValidationLog appends a rejected record to validation_log. The
// timestamp comes from the store clock.
func (se *Session) InsertValidationLog(ctx context.Context, country string, date sql.NullTime, reason string) error {
	var day any
	if date.Valid {
		day = dateOnly(date.Time)
	}
	_, err := se.conn.ExecContext(ctx, se.dialect.rebind(`
		INSERT INTO validation_log (timestamp, country, date, reason)
		VALUES (?, ?, ?, ?)
	`), se.clock.Now().UTC(), country, day, reason)
	return err
}

// ValidationLog returns every logged reject, oldest first.
func (s *Store) ValidationLog(ctx context.Context) ([]models.ValidationLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, country, date, reason
		FROM validation_log
		ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ValidationLogEntry
	for rows.Next() {
		var e models.ValidationLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Country, &e.Date, &e.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
