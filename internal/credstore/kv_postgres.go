package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"medigate/pkg/platform/sentinel"
	"medigate/pkg/platform/tx"
)

// querier is the subset of *sql.DB and *sql.Tx the KV runs on.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresKV persists credential records in PostgreSQL.
type PostgresKV struct {
	db    *sql.DB
	clock func() time.Time // injected clock for testability (defaults to time.Now)
}

// PostgresKVOption configures a PostgresKV instance.
type PostgresKVOption func(*PostgresKV)

// WithPostgresClock sets the clock function for testability.
func WithPostgresClock(clock func() time.Time) PostgresKVOption {
	return func(s *PostgresKV) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewPostgresKV constructs a PostgreSQL-backed KV.
func NewPostgresKV(db *sql.DB, opts ...PostgresKVOption) *PostgresKV {
	kv := &PostgresKV{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(kv)
		}
	}
	return kv
}

// EnsureSchema creates the backing table when it does not exist yet.
func (s *PostgresKV) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS credential_records (
			record_key TEXT PRIMARY KEY,
			record_value BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure credential_records schema: %w", err)
	}
	return nil
}

// conn returns the transaction carried by ctx when one is present, so
// credential writes can join a caller-managed transaction.
func (s *PostgresKV) conn(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

func (s *PostgresKV) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT record_value FROM credential_records WHERE record_key = $1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read credential record: %w", err)
	}
	return value, nil
}

func (s *PostgresKV) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO credential_records (record_key, record_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (record_key) DO UPDATE SET
			record_value = EXCLUDED.record_value,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := s.conn(ctx).ExecContext(ctx, query, key, value, s.clock()); err != nil {
		return fmt.Errorf("write credential record: %w", err)
	}
	return nil
}

func (s *PostgresKV) Delete(ctx context.Context, key string) error {
	if _, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM credential_records WHERE record_key = $1`, key,
	); err != nil {
		return fmt.Errorf("delete credential record: %w", err)
	}
	return nil
}
