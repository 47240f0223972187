package identity

import (
	"context"
	"fmt"
	"strings"

	"axionx/cmd/identity/ids"
	"axionx/cmd/internal/pgstore"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the users and user_credentials tables.
// The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

// WithSchema overrides the default "axionx" schema.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		v, err := pgstore.CheckSchema(schema)
		if err != nil {
			return fmt.Errorf("identity: %w", err)
		}
		s.schema = v
		return nil
	}
}

func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: pgstore.DefaultSchema}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// CreateUser inserts the user and its credential in one transaction.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	in, err := in.normalize(op)
	if err != nil {
		return User{}, err
	}

	id, err := ids.New(in.Now)
	if err != nil {
		return User{}, err
	}
	u := User{ID: id, Email: in.Email, EmailNorm: NormalizeEmail(in.Email), CreatedAt: in.Now}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgstore.Ident(s.schema, "users")+` (id, email, email_norm, created_at)
		 VALUES ($1, $2, $3, $4)`,
		u.ID, u.Email, u.EmailNorm, u.CreatedAt,
	)
	if err != nil {
		if c, ok := pgstore.UniqueViolation(err); ok {
			field := "unique"
			if strings.Contains(c, "email") {
				field = "email"
			}
			return User{}, conflict(op, field)
		}
		return User{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgstore.Ident(s.schema, "user_credentials")+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		u.ID, in.PasswordHash, in.Now,
	)
	if err != nil {
		return User{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	norm := NormalizeEmail(email)
	if norm == "" {
		return UserAuth{}, invalid(op, "email is required")
	}

	var out UserAuth
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.created_at, c.password_hash
		   FROM `+pgstore.Ident(s.schema, "users")+` u
		   JOIN `+pgstore.Ident(s.schema, "user_credentials")+` c ON c.user_id = u.id
		  WHERE u.email_norm = $1`,
		norm,
	).Scan(&out.User.ID, &out.User.Email, &out.User.EmailNorm, &out.User.CreatedAt, &out.PasswordHash)
	if pgstore.NoRows(err) {
		return UserAuth{}, notFound(op)
	}
	if err != nil {
		return UserAuth{}, err
	}
	return out, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, email_norm, created_at FROM `+pgstore.Ident(s.schema, "users")+` WHERE id = $1`,
		strings.TrimSpace(id),
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.CreatedAt)
	if pgstore.NoRows(err) {
		return User{}, notFound(op)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}
