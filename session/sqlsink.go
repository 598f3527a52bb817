package session

import (
	"database/sql"
	"fmt"

	// SQL drivers registered for the file and server sinks.
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/arloliu/go-scpi/instrument"
)

// sqlDialect selects placeholder style and DDL flavor.
type sqlDialect int

const (
	dialectSQLite sqlDialect = iota
	dialectPostgres
)

const (
	sqliteSchema = `CREATE TABLE IF NOT EXISTS samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	ts TEXT NOT NULL,
	instrument TEXT NOT NULL,
	voltage REAL NOT NULL,
	current REAL NOT NULL,
	resistance REAL,
	power REAL
)`
	postgresSchema = `CREATE TABLE IF NOT EXISTS samples (
	id BIGSERIAL PRIMARY KEY,
	ts TIMESTAMPTZ NOT NULL,
	instrument TEXT NOT NULL,
	voltage DOUBLE PRECISION NOT NULL,
	current DOUBLE PRECISION NOT NULL,
	resistance DOUBLE PRECISION,
	power DOUBLE PRECISION
)`

	sqliteInsert   = `INSERT INTO samples (ts, instrument, voltage, current, resistance, power) VALUES (?, ?, ?, ?, ?, ?)`
	postgresInsert = `INSERT INTO samples (ts, instrument, voltage, current, resistance, power) VALUES ($1, $2, $3, $4, $5, $6)`
)

// SQLSink persists samples into a relational table, one row per sample.
// Rows are written inside a transaction that Flush commits, so a crashed
// run loses at most one flush interval of data.
type SQLSink struct {
	db      *sql.DB
	dialect sqlDialect
	tx      *sql.Tx
	closed  bool
}

// NewSQLiteSink opens (or creates) a SQLite database file and ensures the
// samples table exists.
func NewSQLiteSink(path string) (*SQLSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	return newSQLSink(db, dialectSQLite)
}

// NewPostgresSink connects to a PostgreSQL server and ensures the samples
// table exists. dsn uses lib/pq connection-string syntax.
func NewPostgresSink(dsn string) (*SQLSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	return newSQLSink(db, dialectPostgres)
}

// newSQLSink wraps an already-open handle; tests inject a mock here.
func newSQLSink(db *sql.DB, dialect sqlDialect) (*SQLSink, error) {
	schema := sqliteSchema
	if dialect == dialectPostgres {
		schema = postgresSchema
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create samples table: %w", err)
	}

	return &SQLSink{db: db, dialect: dialect}, nil
}

func (s *SQLSink) Write(sample instrument.Sample) error {
	if s.closed {
		return ErrSessionClosed
	}

	if s.tx == nil {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin sample batch: %w", err)
		}
		s.tx = tx
	}

	insert := sqliteInsert
	if s.dialect == dialectPostgres {
		insert = postgresInsert
	}

	_, err := s.tx.Exec(insert,
		sample.Timestamp,
		sample.InstrumentID,
		sample.Voltage,
		sample.Current,
		finiteOrZero(sample.Resistance),
		sample.Power,
	)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}

	return nil
}

// Flush commits the open batch.
func (s *SQLSink) Flush() error {
	if s.tx == nil {
		return nil
	}

	err := s.tx.Commit()
	s.tx = nil
	if err != nil {
		return fmt.Errorf("commit sample batch: %w", err)
	}

	return nil
}

func (s *SQLSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.Flush()
	if cerr := s.db.Close(); err == nil {
		err = cerr
	}

	return err
}
