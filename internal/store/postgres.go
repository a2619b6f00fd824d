package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresConfig controls the Postgres connection pool.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Migrate         bool
}

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore persists reports into Postgres.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a pool, optionally runs embedded migrations, and
// returns the store.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if cfg.Migrate {
		if err := runMigrations(cfg.DSN); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// runMigrations applies the embedded goose migrations through a short-lived
// database/sql connection; goose does not speak pgx natively.
func runMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close() //nolint:errcheck
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

const upsertReportSQL = `
INSERT INTO reports (
	id,
	is_private,
	created_at,
	scam_category,
	category_description,
	bi_directional_vote_count,
	viewer_did_vote,
	description,
	comments_count,
	source,
	checked,
	reported_by_id,
	reported_by_username,
	reported_by_trusted,
	chain
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
ON CONFLICT (id) DO UPDATE SET
	is_private = EXCLUDED.is_private,
	scam_category = EXCLUDED.scam_category,
	category_description = EXCLUDED.category_description,
	bi_directional_vote_count = EXCLUDED.bi_directional_vote_count,
	viewer_did_vote = EXCLUDED.viewer_did_vote,
	description = EXCLUDED.description,
	comments_count = EXCLUDED.comments_count,
	source = EXCLUDED.source,
	checked = EXCLUDED.checked,
	reported_by_id = EXCLUDED.reported_by_id,
	reported_by_username = EXCLUDED.reported_by_username,
	reported_by_trusted = EXCLUDED.reported_by_trusted,
	chain = EXCLUDED.chain
RETURNING (xmax = 0)`

const insertAddressSQL = `
INSERT INTO report_addresses (id, report_id, address, chain)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO NOTHING`

const insertUnifiedSQL = `
INSERT INTO unified_addresses (address, type, address_name, source)
VALUES ($1, $2, $3, $4)
ON CONFLICT (address) DO NOTHING`

// UpsertReport writes the report and its address rows in one transaction.
// The returned bool is true when the report row was inserted rather than
// updated (xmax = 0 only holds for freshly inserted tuples).
func (s *PostgresStore) UpsertReport(
	ctx context.Context,
	rep Report,
	addrs []ReportAddress,
	unified []UnifiedAddress,
) (bool, error) {
	if rep.ID == "" {
		return false, fmt.Errorf("report id is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var created bool
	err = tx.QueryRow(ctx, upsertReportSQL,
		rep.ID,
		rep.IsPrivate,
		rep.CreatedAt,
		rep.ScamCategory,
		rep.CategoryDescription,
		rep.BiDirectionalVoteCount,
		rep.ViewerDidVote,
		rep.Description,
		rep.CommentsCount,
		rep.Source,
		rep.Checked,
		rep.ReportedByID,
		rep.ReportedByUsername,
		rep.ReportedByTrusted,
		rep.Chain,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert report %s: %w", rep.ID, err)
	}

	for _, addr := range addrs {
		if _, err := tx.Exec(ctx, insertAddressSQL, addr.ID, rep.ID, addr.Address, addr.Chain); err != nil {
			return false, fmt.Errorf("insert address %s: %w", addr.ID, err)
		}
	}
	for _, ua := range unified {
		if _, err := tx.Exec(ctx, insertUnifiedSQL, ua.Address, ua.Type, ua.AddressName, ua.Source); err != nil {
			return false, fmt.Errorf("insert unified address %s: %w", ua.Address, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit upsert tx: %w", err)
	}
	return created, nil
}

// Counts returns live row counts for the status endpoint.
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reports`).Scan(&c.Reports); err != nil {
		return Counts{}, fmt.Errorf("count reports: %w", err)
	}
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM report_addresses`).Scan(&c.Addresses); err != nil {
		return Counts{}, fmt.Errorf("count report addresses: %w", err)
	}
	return c, nil
}

// ClearReports removes all rows, children before parents.
func (s *PostgresStore) ClearReports(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin clear tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM report_addresses`); err != nil {
		return fmt.Errorf("clear report addresses: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM reports`); err != nil {
		return fmt.Errorf("clear reports: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit clear tx: %w", err)
	}
	return nil
}

// Ping verifies the pool is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
