package postgres

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	otelpgx "github.com/webitel/webitel-go-kit/infra/otel/instrumentation/pgx"

	conf "github.com/webitel/batch-sync/config"
	"github.com/webitel/batch-sync/internal/errors"
	"github.com/webitel/batch-sync/internal/store"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the struct implementing the Store interface.
type Store struct {
	taskStore    store.TaskStore
	historyStore store.HistoryStore
	config       *conf.DatabaseConfig
	pool         *pgxpool.Pool
	conn         DB
}

// New creates a new Store instance.
func New(config *conf.DatabaseConfig) *Store {
	return &Store{config: config}
}

// NewWithDB creates a Store over an already opened connection.
func NewWithDB(db DB) *Store {
	return &Store{conn: db}
}

func (s *Store) Tasks() store.TaskStore {
	if s.taskStore == nil {
		ts, err := NewTaskStore(s)
		if err != nil {
			return nil
		}
		s.taskStore = ts
	}
	return s.taskStore
}

func (s *Store) History() store.HistoryStore {
	if s.historyStore == nil {
		hs, err := NewHistoryStore(s)
		if err != nil {
			return nil
		}
		s.historyStore = hs
	}
	return s.historyStore
}

// Database returns the database connection or a custom error if it is not opened.
func (s *Store) Database() (DB, error) {
	if s.conn == nil {
		return nil, errors.New("database connection is not opened")
	}
	return s.conn, nil
}

// Open establishes a connection to the database and returns a custom error if it fails.
func (s *Store) Open() error {
	config, err := pgxpool.ParseConfig(s.config.Url)
	if err != nil {
		return errors.NewDBInternalError("open", err)
	}

	// Attach the OpenTelemetry tracer for pgx
	config.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName())

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return errors.NewDBInternalError("open", err)
	}
	s.pool = pool
	s.conn = pool
	slog.Debug("batch_sync.store.connection_opened", slog.String("message", "postgres: connection opened"))
	return nil
}

// Close closes the database connection and returns a custom error if it fails.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		slog.Debug("batch_sync.store.connection_closed", slog.String("message", "postgres: connection closed"))
		s.pool = nil
		s.conn = nil
	}
	return nil
}
