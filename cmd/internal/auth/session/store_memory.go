package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Row
	byHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Row), byHash: make(map[string]string)}
}

func (s *MemoryStore) Create(ctx context.Context, row Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(row)
	return nil
}

func (s *MemoryStore) insertLocked(row Row) {
	r := row
	s.byID[r.ID] = &r
	s.byHash[r.RefreshTokenHash] = r.ID
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return *r, nil
}

func (s *MemoryStore) GetByRefreshHash(ctx context.Context, refreshHash string) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[refreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) Rotate(ctx context.Context, now time.Time, oldHash string, next Row) (Row, error) {
	if err := ctx.Err(); err != nil {
		return Row{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[oldHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	old := s.byID[id]

	if err := checkRotatable(*old, now); err != nil {
		if err == ErrRefreshReuseDetected {
			s.revokeAllLocked(now, old.UserID)
		}
		return *old, err
	}

	next.UserID = old.UserID
	s.insertLocked(next)

	t := now
	newID := next.ID
	old.RevokedAt = &t
	old.LastUsedAt = &t
	old.ReplacedBySessionID = &newID
	return *old, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, now time.Time, id, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.byID[id]
	if !ok {
		return ErrSessionNotFound
	}
	if r.RevokedAt == nil {
		t := now
		r.RevokedAt = &t
	}
	return nil
}

func (s *MemoryStore) RevokeAll(ctx context.Context, now time.Time, userID, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(now, userID)
	return nil
}

func (s *MemoryStore) revokeAllLocked(now time.Time, userID string) {
	for _, r := range s.byID {
		if r.UserID == userID && r.RevokedAt == nil {
			t := now
			r.RevokedAt = &t
		}
	}
}
