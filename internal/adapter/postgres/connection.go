package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/YelzhanWeb/dispatch/internal/config"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Используем any вместо interface{} (Go 1.18+), так как pgx/v5 использует any
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Begin(ctx context.Context) (Tx, error)
	Close()
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

type Row interface {
	Scan(dest ...any) error
}

type Tx interface {
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type CommandTag interface {
	RowsAffected() int64
}

// Connect opens the store with the driver named in cfg.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (DB, error) {
	if cfg.Driver == config.DriverStdlib {
		return ConnectStdlib(ctx, cfg)
	}
	return ConnectPool(ctx, cfg)
}

func dsn(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database)
}

// isNoRows covers both drivers.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// --- pgxpool implementation ---

type pgxDB struct {
	pool *pgxpool.Pool
}

// pgxTx - это обертка над pgx.Tx, чтобы удовлетворить интерфейс Tx
type pgxTx struct {
	tx pgx.Tx
}

func ConnectPool(ctx context.Context, cfg config.DatabaseConfig) (DB, error) {
	pool, err := pgxpool.New(ctx, dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &pgxDB{pool: pool}, nil
}

func (db *pgxDB) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}

func (db *pgxDB) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *pgxDB) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *pgxDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgxTx{tx: tx}, nil
}

func (db *pgxDB) Close() {
	db.pool.Close()
}

func (t *pgxTx) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	return t.tx.Query(ctx, sql, args...)
}

func (t *pgxTx) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return t.tx.QueryRow(ctx, sql, args...)
}

func (t *pgxTx) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	// pgconn.CommandTag удовлетворяет интерфейсу CommandTag
	return t.tx.Exec(ctx, sql, args...)
}

func (t *pgxTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgxTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// --- database/sql implementation (pgx stdlib driver) ---

type sqlDB struct {
	db *sql.DB
}

type sqlTx struct {
	tx *sql.Tx
}

type sqlRows struct {
	rows *sql.Rows
}

type sqlResult struct {
	affected int64
}

func ConnectStdlib(ctx context.Context, cfg config.DatabaseConfig) (DB, error) {
	db, err := sql.Open("pgx", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewSQLDB(db), nil
}

// NewSQLDB wraps an existing *sql.DB.
func NewSQLDB(db *sql.DB) DB {
	return &sqlDB{db: db}
}

func (db *sqlDB) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (db *sqlDB) QueryRow(ctx context.Context, query string, args ...any) Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

func (db *sqlDB) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	return toCommandTag(db.db.ExecContext(ctx, query, args...))
}

func (db *sqlDB) Begin(ctx context.Context) (Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqlTx{tx: tx}, nil
}

func (db *sqlDB) Close() {
	_ = db.db.Close()
}

func (t *sqlTx) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &sqlRows{rows: rows}, nil
}

func (t *sqlTx) QueryRow(ctx context.Context, query string, args ...any) Row {
	return t.tx.QueryRowContext(ctx, query, args...)
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	return toCommandTag(t.tx.ExecContext(ctx, query, args...))
}

func (t *sqlTx) Commit(ctx context.Context) error {
	return t.tx.Commit()
}

// Rollback after Commit is a no-op, matching pgx.
func (t *sqlTx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (r *sqlRows) Next() bool             { return r.rows.Next() }
func (r *sqlRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *sqlRows) Err() error             { return r.rows.Err() }
func (r *sqlRows) Close()                 { _ = r.rows.Close() }

func (r sqlResult) RowsAffected() int64 { return r.affected }

func toCommandTag(res sql.Result, err error) (CommandTag, error) {
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	return sqlResult{affected: n}, nil
}
