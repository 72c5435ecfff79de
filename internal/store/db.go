package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"cragdb/api/internal/cache"
	"cragdb/api/internal/logging"
)

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore is the pool-backed repository. Its embedded Repo runs
// statements outside any transaction and reads through the query cache.
type PostgresStore struct {
	*Repo
	db    *sql.DB
	cache cache.Cache
}

func NewPostgresStore(db *sql.DB, c cache.Cache, locale string) *PostgresStore {
	if c == nil {
		c = cache.Nop{}
	}
	return &PostgresStore{
		Repo:  &Repo{q: db, cache: c, locale: locale},
		db:    db,
		cache: c,
	}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn against a Repo bound to one transaction. Any error from fn
// rolls the transaction back and is returned, joined with the rollback error
// if that failed too. Cache entries of the tables fn wrote are dropped after
// the commit.
func (s *PostgresStore) InTx(ctx context.Context, fn func(*Repo) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	repo := &Repo{q: tx, cache: cache.Nop{}, locale: s.locale, dirty: map[string]struct{}{}}
	if err := fn(repo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	if tables := repo.dirtyTables(); len(tables) > 0 {
		if err := s.cache.Invalidate(ctx, tables...); err != nil {
			logging.FromContext(ctx).WithError(err).WithField("tables", tables).Warn("query cache invalidation failed")
		}
	}
	return nil
}
