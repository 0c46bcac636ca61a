package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/weatherload/internal/config"
)

// Dialect selects the SQL flavour queries are rendered in.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ErrCommit marks a failure to commit a transaction, as opposed to a
// failure of the statement inside it.
var ErrCommit = errors.New("commit transaction")

type Store struct {
	db      *sql.DB
	dialect Dialect
	log     *zap.Logger
	clock   clockwork.Clock
}

func New(db *sql.DB, dialect Dialect, log *zap.Logger, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, dialect: dialect, log: log, clock: clock}
}

// Open builds a Store for the configured driver. No connection is made
// until the first operation.
func Open(cfg config.Database, log *zap.Logger) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		connCfg, err := pgx.ParseConfig(cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("parse postgres config: %w", err)
		}
		return New(stdlib.OpenDB(*connCfg), DialectPostgres, log, nil), nil
	default:
		db, err := sql.Open("sqlite", cfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("open sqlite db: %w", err)
		}
		return New(db, DialectSQLite, log, nil), nil
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Session is a single connection held for the duration of one operation.
type Session struct {
	conn    *sql.Conn
	dialect Dialect
	clock   clockwork.Clock
}

// WithSession acquires one connection, runs fn on it and releases the
// connection on every return path.
func (s *Store) WithSession(ctx context.Context, fn func(*Session) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		s.log.Error("connect to database", zap.String("dialect", string(s.dialect)), zap.Error(err))
		return fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close()

	return fn(&Session{conn: conn, dialect: s.dialect, clock: s.clock})
}

// rebind rewrites ? placeholders into the $n form Postgres expects.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
