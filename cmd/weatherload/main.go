package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/lox/weatherload/internal/config"
	"github.com/lox/weatherload/internal/ingest"
	"github.com/lox/weatherload/internal/logger"
	"github.com/lox/weatherload/internal/metrics"
	"github.com/lox/weatherload/internal/store"
)

type cli struct {
	Config      string `help:"Path to a YAML config file." type:"path" env:"WEATHERLOAD_CONFIG"`
	EnvFile     string `help:"Path to a .env file." type:"path" default:".env"`
	LogLevel    string `help:"Override the configured log level (debug, info, warn, error)."`
	MetricsFile string `help:"Write Prometheus metrics to this textfile on exit." type:"path"`

	InitSchema initSchemaCmd `cmd:"" help:"Create the weather_data, validation_log and model_metrics tables."`
	Load       loadCmd       `cmd:"" help:"Validate and load a CSV file of weather records."`
	Insert     insertCmd     `cmd:"" help:"Validate and insert one JSON weather record."`
	LogMetrics logMetricsCmd `cmd:"" help:"Record a model evaluation in model_metrics."`
	Status     statusCmd     `cmd:"" help:"Report what the store holds."`
}

type app struct {
	store  *store.Store
	loader *ingest.Loader
	log    *zap.Logger
}

type initSchemaCmd struct{}

func (c *initSchemaCmd) Run(ctx context.Context, a *app) error {
	return a.store.InitSchema(ctx)
}

type loadCmd struct {
	File string `arg:"" optional:"" type:"path" default:"data/weather_data.csv" help:"CSV file with a header row."`
}

func (c *loadCmd) Run(ctx context.Context, a *app) error {
	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}
	if _, err := a.loader.LoadCSV(ctx, c.File); err != nil {
		return err
	}
	n, err := a.store.CountWeather(ctx)
	if err != nil {
		return fmt.Errorf("count weather rows: %w", err)
	}
	a.log.Info("weather_data rows", zap.Int("rows", n))
	return nil
}

type insertCmd struct {
	File string `short:"f" type:"existingfile" help:"Read the JSON record from this file instead of stdin."`
}

func (c *insertCmd) Run(ctx context.Context, a *app) error {
	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	rd, closeFn, err := openInput(c.File)
	if err != nil {
		return err
	}
	defer closeFn()

	ok, err := a.loader.InsertJSON(ctx, rd)
	if err != nil {
		return err
	}
	if !ok {
		a.log.Warn("record was not inserted, see validation_log")
	}
	return nil
}

type logMetricsCmd struct {
	ModelPath    string `required:"" help:"Where the evaluated model is stored."`
	ModelVersion string `required:"" help:"Version label of the evaluated model."`
	Input        string `short:"i" type:"existingfile" help:"Read the metrics JSON object from this file instead of stdin."`
}

func (c *logMetricsCmd) Run(ctx context.Context, a *app) error {
	if err := a.store.InitSchema(ctx); err != nil {
		return err
	}

	rd, closeFn, err := openInput(c.Input)
	if err != nil {
		return err
	}
	defer closeFn()

	dec := json.NewDecoder(rd)
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("decode metrics: %w", err)
	}
	return a.loader.LogModelMetrics(ctx, m, c.ModelPath, c.ModelVersion)
}

type statusCmd struct {
	Date string `help:"Also show the weather row stored for this date (YYYY-MM-DD)."`
}

func (c *statusCmd) Run(ctx context.Context, a *app) error {
	var day time.Time
	if c.Date != "" {
		var err error
		if day, err = time.Parse(time.DateOnly, c.Date); err != nil {
			return fmt.Errorf("parse --date: %w", err)
		}
	}

	sum, err := a.store.Summary(ctx)
	if err != nil {
		a.log.Error("read store summary", zap.Error(err))
		return err
	}
	fields := []zap.Field{
		zap.Int("weather_rows", sum.WeatherRows),
		zap.Int("rejects", sum.Rejects),
		zap.Int("model_runs", sum.ModelRuns),
	}
	if r := sum.LastReject; r != nil {
		fields = append(fields, zap.String("last_reject", r.Reason), zap.Time("last_reject_at", r.Timestamp))
	}
	if m := sum.LatestModelRun; m != nil {
		fields = append(fields,
			zap.String("model_version", m.ModelVersion),
			zap.Float64("f1_score", m.F1Score),
			zap.Bool("model_valid", m.IsValid))
	}
	a.log.Info("store status", fields...)

	if c.Date == "" {
		return nil
	}
	rec, err := a.store.GetWeather(ctx, day)
	if err != nil {
		return fmt.Errorf("get weather %s: %w", c.Date, err)
	}
	if rec == nil {
		a.log.Warn("no weather row for date", zap.String("date", c.Date))
		return nil
	}
	a.log.Info("weather row",
		zap.String("date", c.Date),
		zap.String("country", rec.Country),
		zap.Float64("avg_temp_c", rec.AvgTempC),
		zap.Int("humidity", rec.Humidity),
		zap.String("condition", rec.Condition),
		zap.Int("will_it_rain", rec.WillItRain))
	return nil
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("weatherload"),
		kong.Description("Validate weather records and load them into the weather store."),
		kong.UsageOnError(),
	)
	kctx.FatalIfErrorf(run(kctx, &c))
}

func run(kctx *kong.Context, c *cli) error {
	cfg, err := config.Load(c.Config, c.EnvFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level := cfg.LogLevel
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	log, err := logger.New(level)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Flush(log)

	st, err := store.Open(cfg.Database, log)
	if err != nil {
		log.Error("open store", zap.Error(err))
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err = kctx.Run(&app{
		store:  st,
		loader: ingest.NewLoader(st, log),
		log:    log,
	})

	if c.MetricsFile != "" {
		if werr := metrics.WriteTextfile(c.MetricsFile); werr != nil {
			log.Error("write metrics textfile", zap.String("path", c.MetricsFile), zap.Error(werr))
		}
	}
	return err
}
