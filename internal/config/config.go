package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"

	envPrefix = "WEATHERLOAD"
)

// Database holds the coordinates of the relational store.
type Database struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`

	// Path is the database file, used by the sqlite driver only.
	Path string `mapstructure:"path"`
}

type Config struct {
	Database Database `mapstructure:"database"`
	LogLevel string   `mapstructure:"log_level"`
}

// Load reads configuration from (in decreasing priority):
//  1. WEATHERLOAD_* environment variables (e.g. WEATHERLOAD_DATABASE_HOST)
//  2. the .env file at envFile, if it exists
//  3. the YAML file at configFile, if given
//  4. defaults matching the docker-compose Postgres service
func Load(configFile, envFile string) (*Config, error) {
	if envFile != "" {
		// Missing .env is fine; variables already set in the process win.
		_ = godotenv.Load(envFile)
	}

	v := viper.New()

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.host", "postgres")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "airflow")
	v.SetDefault("database.user", "airflow")
	v.SetDefault("database.password", "airflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "data/weather.db")
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (d Database) Validate() error {
	switch d.Driver {
	case DriverSQLite:
		if d.Path == "" {
			return errors.New("database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if d.Host == "" {
			return errors.New("database.host is required")
		}
		if d.Name == "" {
			return errors.New("database.name is required")
		}
		if d.Port <= 0 || d.Port > 65535 {
			return fmt.Errorf("invalid database.port %d", d.Port)
		}
	default:
		return fmt.Errorf("unsupported database.driver %q (want %q or %q)", d.Driver, DriverPostgres, DriverSQLite)
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (d Database) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}
