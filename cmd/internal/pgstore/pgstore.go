// Package pgstore holds the Postgres plumbing shared by the AxionX stores: pool
// construction, the embedded schema, identifier quoting and constraint-error
// classification.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultSchema is the schema every store uses unless configured otherwise.
const DefaultSchema = "axionx"

//go:embed schema.sql
var schemaSQL string

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PoolConfig is the subset of pool tuning exposed through env.
type PoolConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

// Open builds a pgxpool and validates connectivity.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		pcfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := Ping(ctx, pool, 3*time.Second); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Ping checks that a connection can be acquired within timeout.
func Ping(parent context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	conn.Release()
	return nil
}

// Migrate applies the embedded schema (idempotent) inside schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	if !ValidIdent(schema) {
		return fmt.Errorf("pgstore: invalid schema identifier %q", schema)
	}
	sql := strings.ReplaceAll(schemaSQL, "{{schema}}", pgx.Identifier{schema}.Sanitize())
	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// ValidIdent reports whether s is a plain Postgres identifier.
func ValidIdent(s string) bool { return identRe.MatchString(s) }

// CheckSchema validates a configured schema name.
func CheckSchema(schema string) (string, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return DefaultSchema, nil
	}
	if !ValidIdent(schema) {
		return "", fmt.Errorf("pgstore: invalid schema identifier %q", schema)
	}
	return schema, nil
}

// Ident quotes schema.name.
func Ident(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

// UniqueViolation returns the violated constraint name for 23505 errors.
func UniqueViolation(err error) (constraint string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return strings.ToLower(pgErr.ConstraintName), true
}

// ForeignKeyViolation reports 23503 errors.
func ForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

// NoRows reports pgx.ErrNoRows.
func NoRows(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
