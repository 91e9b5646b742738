// Package postgres implements a Source over an SMS table synced into PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/smsledger/pkg/api"
	"github.com/ArionMiles/smsledger/pkg/pgpool"
)

const (
	defaultTable = "sms"
	inboxType    = 1

	// SQLSTATE insufficient_privilege.
	codeInsufficientPrivilege = "42501"
)

// Config holds configuration for the PostgreSQL reader.
type Config struct {
	pgpool.Config

	// Table is the message table, optionally schema-qualified. Defaults to "sms".
	Table string `json:"table,omitempty"`
}

// Reader reads inbox rows from PostgreSQL.
type Reader struct {
	cfg    pgpool.Config
	schema string
	table  string
	logger *slog.Logger

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New creates a PostgreSQL reader. The connection is opened on first use.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	table := cfg.Table
	if table == "" {
		table = defaultTable
	}
	var schema string
	if before, after, ok := strings.Cut(table, "."); ok {
		schema, table = before, after
	}

	return &Reader{
		cfg:    cfg.Config,
		schema: schema,
		table:  table,
		logger: logger,
	}
}

// Close releases the connection pool.
func (r *Reader) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
}

func (r *Reader) connect(ctx context.Context) (*pgxpool.Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool != nil {
		return r.pool, nil
	}

	pool, err := pgpool.NewPool(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, errors.Join(api.ErrSourceUnavailable, err)
	}
	r.pool = pool
	return pool, nil
}

func (r *Reader) identifier() pgx.Identifier {
	if r.schema != "" {
		return pgx.Identifier{r.schema, r.table}
	}
	return pgx.Identifier{r.table}
}

// HasPermission reports whether the current role may SELECT from the table.
// A table that does not exist yet is not a permission problem.
func (r *Reader) HasPermission(ctx context.Context) (bool, error) {
	pool, err := r.connect(ctx)
	if err != nil {
		return false, err
	}

	var granted bool
	err = pool.QueryRow(ctx, `
		SELECT CASE
			WHEN to_regclass($1) IS NULL THEN true
			ELSE has_table_privilege(to_regclass($1)::oid, 'SELECT')
		END
	`, r.identifier().Sanitize()).Scan(&granted)
	if err != nil {
		return false, fmt.Errorf("checking table privilege: %w", err)
	}
	return granted, nil
}

// RequestPermission re-checks the privilege; grants are managed by the database administrator.
func (r *Reader) RequestPermission(ctx context.Context) (bool, error) {
	return r.HasPermission(ctx)
}

// Messages returns inbox rows newest first.
func (r *Reader) Messages(ctx context.Context) ([]api.MessageRecord, error) {
	pool, err := r.connect(ctx)
	if err != nil {
		return nil, err
	}

	columns, err := r.columns(ctx, pool)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found: %w", r.identifier().Sanitize(), api.ErrSourceUnavailable)
	}

	rows, err := pool.Query(ctx, buildQuery(r.identifier(), columns))
	if err != nil {
		return nil, classify(err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (api.MessageRecord, error) {
		var rec api.MessageRecord
		err := row.Scan(&rec.Sender, &rec.TimestampMillis, &rec.Body)
		return rec, err
	})
	if err != nil {
		return nil, classify(err)
	}

	r.logger.Debug("read sms table", "table", r.identifier().Sanitize(), "count", len(records))
	return records, nil
}

func (r *Reader) columns(ctx context.Context, pool *pgxpool.Pool) (map[string]bool, error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
		  AND table_name = $2
	`, r.schema, r.table)
	if err != nil {
		return nil, fmt.Errorf("probing columns: %w", classify(err))
	}

	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("probing columns: %w", classify(err))
	}

	columns := make(map[string]bool, len(names))
	for _, name := range names {
		columns[name] = true
	}
	return columns, nil
}

// buildQuery selects address, date and body, substituting literals for
// missing columns. Rows are filtered to the inbox when a type column exists.
func buildQuery(table pgx.Identifier, columns map[string]bool) string {
	address := "''"
	if columns["address"] {
		address = "COALESCE(address::text, '')"
	}
	date := "0::bigint"
	if columns["date"] {
		date = "COALESCE(date, 0)::bigint"
	}
	body := "''"
	if columns["body"] {
		body = "COALESCE(body::text, '')"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s, %s, %s FROM %s", address, date, body, table.Sanitize())
	if columns["type"] {
		fmt.Fprintf(&b, " WHERE type::text = '%d'", inboxType)
	}
	if columns["date"] {
		b.WriteString(" ORDER BY 2 DESC")
	}
	return b.String()
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeInsufficientPrivilege {
		return errors.Join(api.ErrPermissionDenied, err)
	}
	return err
}
