package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the sessions table.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	schema, err := pgstore.CheckSchema(schema)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if pool == nil {
		return nil, fmt.Errorf("session: nil pool")
	}
	return &PostgresStore{pool: pool, table: pgstore.Ident(schema, "sessions")}, nil
}

const rowColumns = `id, user_id, refresh_token_hash, created_at, last_used_at, expires_at,
	revoked_at, replaced_by_session_id, platform, COALESCE(user_agent, ''), host(ip)`

func scanRow(r pgx.Row) (Row, error) {
	var (
		row      Row
		platform string
		ip       *string
	)
	err := r.Scan(
		&row.ID, &row.UserID, &row.RefreshTokenHash, &row.CreatedAt, &row.LastUsedAt,
		&row.ExpiresAt, &row.RevokedAt, &row.ReplacedBySessionID, &platform, &row.UserAgent, &ip,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}
	row.Platform = ParsePlatform(platform)
	if ip != nil {
		row.IP = net.ParseIP(*ip)
	}
	return row, nil
}

func ipArg(ip net.IP) any {
	if ip == nil {
		return nil
	}
	return ip.String()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *PostgresStore) insert(ctx context.Context, tx pgx.Tx, row Row) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO `+s.table+` (
			id, user_id, refresh_token_hash, created_at, last_used_at, expires_at,
			platform, user_agent, ip
		) VALUES ($1, $2, $3, $4, $4, $5, $6, $7, $8::inet)
	`, row.ID, row.UserID, row.RefreshTokenHash, row.CreatedAt, row.ExpiresAt,
		string(row.Platform), nullIfEmpty(row.UserAgent), ipArg(row.IP))
	return err
}

func (s *PostgresStore) Create(ctx context.Context, row Row) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return s.insert(ctx, tx, row)
	})
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx, `SELECT `+rowColumns+` FROM `+s.table+` WHERE id = $1`, id))
}

func (s *PostgresStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	return scanRow(s.pool.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM `+s.table+` WHERE refresh_token_hash = $1`, refreshHash))
}

// Rotate serializes concurrent refreshes of one token with SELECT ... FOR UPDATE.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Row) (Row, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Row{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := scanRow(tx.QueryRow(ctx,
		`SELECT `+rowColumns+` FROM `+s.table+` WHERE refresh_token_hash = $1 FOR UPDATE`, oldHash))
	if err != nil {
		return Row{}, err
	}

	if err := checkRotatable(old, now); err != nil {
		if errors.Is(err, ErrRefreshReuseDetected) {
			if _, rerr := tx.Exec(ctx, `
				UPDATE `+s.table+`
				   SET revoked_at = COALESCE(revoked_at, $2),
				       revocation_reason = COALESCE(revocation_reason, 'reuse_detected')
				 WHERE user_id = $1`, old.UserID, now); rerr != nil {
				return old, rerr
			}
			if cerr := tx.Commit(ctx); cerr != nil {
				return old, cerr
			}
		}
		return old, err
	}

	next.UserID = old.UserID
	if err := s.insert(ctx, tx, next); err != nil {
		return old, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE `+s.table+`
		   SET last_used_at = $2, revoked_at = $2, replaced_by_session_id = $3,
		       revocation_reason = 'rotation'
		 WHERE id = $1`, old.ID, now, next.ID); err != nil {
		return old, err
	}

	return old, tx.Commit(ctx)
}

func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, id, reason string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		   SET revoked_at = COALESCE(revoked_at, $2),
		       revocation_reason = COALESCE(revocation_reason, $3)
		 WHERE id = $1`, id, now, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		   SET revoked_at = $2, revocation_reason = $3
		 WHERE user_id = $1 AND revoked_at IS NULL`, userID, now, reason)
	return err
}
