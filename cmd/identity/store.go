package identity

import (
	"context"
	"time"
)

// User is an AxionX account.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	CreatedAt time.Time
}

// UserAuth is a user plus its stored credential, used only by login.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput registers an account. PasswordHash comes from Credentials.Hash.
type CreateUserInput struct {
	Email        string
	PasswordHash string
	Now          time.Time
}

// Store is the account persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
	GetUserByID(ctx context.Context, id string) (User, error)
}

func (in CreateUserInput) normalize(op string) (CreateUserInput, error) {
	in.Email = trimmed(in.Email)
	if in.Email == "" {
		return in, invalid(op, "email is required")
	}
	if in.PasswordHash == "" {
		return in, invalid(op, "password hash is required")
	}
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	return in, nil
}
