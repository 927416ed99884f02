package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/tesso57/feedwatch/internal/logger"
)

// Postgres is a Store backed by a shared PostgreSQL table.
type Postgres struct {
	db        *sql.DB
	namespace string
}

// OpenPostgres connects with dsn and ensures the kv table exists.
func OpenPostgres(ctx context.Context, dsn, namespace string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	if namespace == "" {
		return nil, errors.New("kv namespace is empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	p := &Postgres{db: db, namespace: namespace}
	if err := p.ensure(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Infof("[kv] postgres connected (namespace %s)", namespace)
	return p, nil
}

func (p *Postgres) ensure(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS kv (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (namespace, key)
)`)
	if err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	return nil
}

// Get returns the value stored under key in the store's namespace.
func (p *Postgres) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = $1 AND key = $2`, p.namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return value, true, nil
}

// Set upserts the value stored under key.
func (p *Postgres) Set(ctx context.Context, key string, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO kv (namespace, key, value, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		p.namespace, key, value,
	)
	if err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Mutate reads and rewrites key in one transaction holding an advisory
// lock on the namespaced key.
func (p *Postgres) Mutate(ctx context.Context, key string, fn MutateFunc) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("kv mutate %s: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, p.namespace+"/"+key); err != nil {
		return fmt.Errorf("kv mutate %s: %w", key, err)
	}

	var current []byte
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = $1 AND key = $2`, p.namespace, key,
	).Scan(&current)
	found := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("kv mutate %s: %w", key, err)
	}

	next, write, err := apply(fn, current, found)
	if err != nil {
		return err
	}
	if write {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv (namespace, key, value, updated_at) VALUES ($1, $2, $3, now())
			ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
			p.namespace, key, next,
		); err != nil {
			return fmt.Errorf("kv mutate %s: %w", key, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("kv mutate %s: %w", key, err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	if p.db != nil {
		return p.db.Close()
	}
	return nil
}
