package models

import (
	"database/sql"
	"time"
)

// Record is a raw weather record keyed by column name, as read from a CSV
// row or a JSON object. Values are not yet validated or typed.
type Record map[string]any

// Weather record columns.
const (
	FieldCountry       = "country"
	FieldDate          = "date"
	FieldAvgTempC      = "avg_temp_c"
	FieldMaxTempC      = "max_temp_c"
	FieldMinTempC      = "min_temp_c"
	FieldHumidity      = "humidity"
	FieldWindKph       = "wind_kph"
	FieldCondition     = "condition"
	FieldChanceOfRain  = "chance_of_rain"
	FieldWillItRain    = "will_it_rain"
	FieldTotalPrecipMM = "totalprecip_mm"
	FieldUV            = "uv"
)

// RequiredFields are the measurement columns that must be present on every
// record, after country and date.
var RequiredFields = []string{
	FieldAvgTempC,
	FieldMaxTempC,
	FieldMinTempC,
	FieldHumidity,
	FieldWindKph,
	FieldCondition,
	FieldChanceOfRain,
	FieldWillItRain,
	FieldTotalPrecipMM,
	FieldUV,
}

// WeatherRecord is one validated daily weather fact. Date is the natural key.
type WeatherRecord struct {
	ID            int64
	Country       string
	Date          time.Time
	AvgTempC      float64
	MaxTempC      float64
	MinTempC      float64
	Humidity      int
	WindKph       float64
	Condition     string
	ChanceOfRain  int
	WillItRain    int
	TotalPrecipMM float64
	UV            float64
}

type ValidationLogEntry struct {
	ID        int64
	Timestamp time.Time
	Country   string
	Date      sql.NullTime
	Reason    string
}

type ModelMetricsEntry struct {
	ID           int64
	Timestamp    time.Time
	ModelVersion string
	ModelPath    string
	Accuracy     float64
	Precision    float64
	Recall       float64
	F1Score      float64
	IsValid      bool
}
