// Package pgtest opens throwaway Postgres schemas for integration tests.
// Tests are opt-in: without AXIONX_DATABASE_URL they skip.
package pgtest

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnvURL names the variable holding the integration database URL.
const EnvURL = "AXIONX_DATABASE_URL"

// Open connects to EnvURL or skips the test.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, reason := connect(t)
	if pool == nil {
		t.Skipf("integration test skipped: %s", reason)
	}
	return pool
}

// Maybe is Open for tests that also run against in-memory stores: it returns nil
// instead of skipping.
func Maybe(t *testing.T) *pgxpool.Pool {
	t.Helper()

	pool, reason := connect(t)
	if pool == nil {
		t.Logf("postgres variant skipped: %s", reason)
	}
	return pool
}

func connect(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv(EnvURL))
	if raw == "" {
		return nil, EnvURL + " is not set"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	pool, err := pgstore.Open(ctx, pgstore.PoolConfig{URL: raw, MinConns: -1})
	if err != nil {
		if unreachable(err) && os.Getenv("CI") == "" {
			return nil, "Postgres unreachable: " + err.Error()
		}
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool, ""
}

// Schema creates a fresh migrated schema and drops it when the test ends.
func Schema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "axionx_it_" + strings.ToLower(ids.Must(time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := pgstore.Migrate(ctx, pool, schema); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`)
	})
	return schema
}

func unreachable(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded)
}
