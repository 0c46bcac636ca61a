package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/lox/weatherload/internal/models"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ToWeatherRecord converts a record that passed Validate into its typed form.
func ToWeatherRecord(r models.Record) (models.WeatherRecord, error) {
	var rec models.WeatherRecord

	date, ok := parseDate(r[models.FieldDate])
	if !ok {
		return rec, fmt.Errorf("invalid date %v", r[models.FieldDate])
	}
	rec.Country = strings.TrimSpace(fmt.Sprint(r[models.FieldCountry]))
	rec.Date = date
	rec.Condition = fmt.Sprint(r[models.FieldCondition])

	floats := []struct {
		field string
		dst   *float64
	}{
		{models.FieldAvgTempC, &rec.AvgTempC},
		{models.FieldMaxTempC, &rec.MaxTempC},
		{models.FieldMinTempC, &rec.MinTempC},
		{models.FieldWindKph, &rec.WindKph},
		{models.FieldTotalPrecipMM, &rec.TotalPrecipMM},
		{models.FieldUV, &rec.UV},
	}
	for _, f := range floats {
		v, err := toFloat(r[f.field])
		if err != nil {
			return rec, fmt.Errorf("%s: %w", f.field, err)
		}
		*f.dst = v
	}

	ints := []struct {
		field string
		dst   *int
	}{
		{models.FieldHumidity, &rec.Humidity},
		{models.FieldChanceOfRain, &rec.ChanceOfRain},
		{models.FieldWillItRain, &rec.WillItRain},
	}
	for _, f := range ints {
		v, err := toFloat(r[f.field])
		if err != nil {
			return rec, fmt.Errorf("%s: %w", f.field, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return rec, fmt.Errorf("%s: not a finite number", f.field)
		}
		*f.dst = int(math.Round(v))
	}

	return rec, nil
}

// naTokens are the cell values read as "no value", matching the NA markers
// common CSV exporters (and pandas) write.
var naTokens = map[string]bool{
	"": true, "#N/A": true, "#N/A N/A": true, "#NA": true, "-1.#IND": true, "-1.#QNAN": true,
	"-NaN": true, "-nan": true, "1.#IND": true, "1.#QNAN": true, "<NA>": true, "N/A": true,
	"NA": true, "NULL": true, "NaN": true, "None": true, "n/a": true, "nan": true, "null": true,
}

// isMissing reports whether v carries no value: nil, NaN, or an NA cell.
func isMissing(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case string:
		return naTokens[x]
	case json.Number:
		return x == ""
	}
	return false
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func parseDate(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, !x.IsZero()
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func recordCountry(r models.Record) string {
	v := r[models.FieldCountry]
	if isMissing(v) {
		return "N/A"
	}
	return fmt.Sprint(v)
}

func recordDate(r models.Record) sql.NullTime {
	t, ok := parseDate(r[models.FieldDate])
	return sql.NullTime{Time: t, Valid: ok}
}

// dateLabel is the date as given, for log lines.
func dateLabel(r models.Record) string {
	v := r[models.FieldDate]
	if isMissing(v) {
		return "unknown"
	}
	return fmt.Sprint(v)
}
