// Package ids mints ULIDs for every AxionX record: users, sessions, conversations,
// messages, leads and request ids.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a 26-char ULID for now (UTC now when zero). IDs minted within the same
// millisecond are strictly increasing, so messages appended in one burst sort in
// insertion order.
func New(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Must is New for call sites where entropy failure is unrecoverable anyway.
func Must(now time.Time) string {
	id, err := New(now)
	if err != nil {
		panic(err)
	}
	return id
}
