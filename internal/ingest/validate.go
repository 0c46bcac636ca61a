package ingest

import (
	"fmt"
	"math"
	"strings"

	"github.com/lox/weatherload/internal/models"
)

const (
	ReasonRowNull          = "row is null"
	ReasonCountryEmpty     = "Country is null or empty"
	ReasonDateInvalid      = "Date is null or invalid"
	ReasonRequiredNull     = "One or more required fields are null"
	ReasonHumidityRange    = "Humidity is out of range (0-100)"
	ReasonChanceOfRain     = "Chance of rain is out of range (0-100)"
	ReasonWillItRain       = "Will it rain is not a boolean value"
	ReasonWindNegative     = "Wind speed is negative"
	ReasonAvgTempRange     = "Average temperature is out of range (-100 to 100)"
	ReasonMaxTempRange     = "Maximum temperature is out of range (-100 to 100)"
	ReasonMinTempRange     = "Minimum temperature is out of range (-100 to 100)"
	ReasonPrecipNegative   = "Total precipitation is negative"
	ReasonUVRange          = "UV index is out of range (0-11)"
	reasonUnexpectedPrefix = "Unexpected error at validation: "
)

var temperatureChecks = []struct {
	field  string
	reason string
}{
	{models.FieldAvgTempC, ReasonAvgTempRange},
	{models.FieldMaxTempC, ReasonMaxTempRange},
	{models.FieldMinTempC, ReasonMinTempRange},
}

// Validate checks r against the weather record rules and returns the reason
// for the first rule it breaks, or "" if it passes. Values that cannot be
// interpreted at all produce an "Unexpected error at validation" reason;
// Validate never panics.
func Validate(r models.Record) (reason string) {
	defer func() {
		if p := recover(); p != nil {
			reason = unexpected(fmt.Errorf("%v", p))
		}
	}()

	if r == nil {
		return ReasonRowNull
	}

	country := r[models.FieldCountry]
	if isMissing(country) || strings.TrimSpace(fmt.Sprint(country)) == "" {
		return ReasonCountryEmpty
	}

	if _, ok := parseDate(r[models.FieldDate]); !ok {
		return ReasonDateInvalid
	}

	for _, field := range models.RequiredFields {
		if isMissing(r[field]) {
			return ReasonRequiredNull
		}
	}

	humidity, reason := number(r, models.FieldHumidity)
	if reason != "" {
		return reason
	}
	if humidity < 0 || humidity > 100 {
		return ReasonHumidityRange
	}

	chance, reason := number(r, models.FieldChanceOfRain)
	if reason != "" {
		return reason
	}
	if chance < 0 || chance > 100 {
		return ReasonChanceOfRain
	}

	willRain, reason := number(r, models.FieldWillItRain)
	if reason != "" {
		return reason
	}
	if willRain != 0 && willRain != 1 {
		return ReasonWillItRain
	}

	wind, reason := number(r, models.FieldWindKph)
	if reason != "" {
		return reason
	}
	if wind < 0 {
		return ReasonWindNegative
	}

	for _, c := range temperatureChecks {
		temp, reason := number(r, c.field)
		if reason != "" {
			return reason
		}
		if temp < -100 || temp > 100 {
			return c.reason
		}
	}

	precip, reason := number(r, models.FieldTotalPrecipMM)
	if reason != "" {
		return reason
	}
	if precip < 0 {
		return ReasonPrecipNegative
	}

	uv, reason := number(r, models.FieldUV)
	if reason != "" {
		return reason
	}
	if uv < 0 || uv > 11 {
		return ReasonUVRange
	}

	return ""
}

// number reads a required numeric field. A value that parses to NaN, such
// as "NAN" or "+nan", counts as missing.
func number(r models.Record, field string) (float64, string) {
	f, err := toFloat(r[field])
	if err != nil {
		return 0, unexpected(err)
	}
	if math.IsNaN(f) {
		return 0, ReasonRequiredNull
	}
	return f, ""
}

func unexpected(err error) string {
	return reasonUnexpectedPrefix + err.Error()
}

// IsUnexpected reports whether reason came from a value Validate could not
// interpret rather than from a rule.
func IsUnexpected(reason string) bool {
	return strings.HasPrefix(reason, reasonUnexpectedPrefix)
}
