package identity

import (
	"context"
	"strings"
	"sync"

	"axionx/cmd/identity/ids"
)

// MemoryStore keeps accounts in process memory. Used when no database is configured
// and by tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]UserAuth
	byEmail map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]UserAuth),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	in, err := in.normalize(op)
	if err != nil {
		return User{}, err
	}

	id, err := ids.New(in.Now)
	if err != nil {
		return User{}, err
	}
	u := User{ID: id, Email: in.Email, EmailNorm: NormalizeEmail(in.Email), CreatedAt: in.Now}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byEmail[u.EmailNorm]; taken {
		return User{}, conflict(op, "email")
	}
	s.byID[u.ID] = UserAuth{User: u, PasswordHash: in.PasswordHash}
	s.byEmail[u.EmailNorm] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, notFound(op)
	}
	return s.byID[id], nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, notFound(op)
	}
	return ua.User, nil
}

func trimmed(s string) string { return strings.TrimSpace(s) }
