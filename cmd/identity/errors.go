package identity

import (
	"errors"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("account not found")
	ErrConflict     = errors.New("account already exists")
)

// Error carries the failing operation alongside one of the sentinel kinds.
// Detail is shown to users for ErrInvalidInput, so it never holds secrets.
type Error struct {
	Op     string
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.Detail != "" {
		b.WriteString(" (")
		b.WriteString(e.Detail)
		b.WriteString(")")
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func invalid(op, detail string) error { return &Error{Op: op, Kind: ErrInvalidInput, Detail: detail} }
func conflict(op, field string) error { return &Error{Op: op, Kind: ErrConflict, Detail: field} }
func notFound(op string) error        { return &Error{Op: op, Kind: ErrNotFound} }

func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// InputDetail returns the user-facing reason of an ErrInvalidInput error.
func InputDetail(err error) (string, bool) {
	var e *Error
	if errors.As(err, &e) && errors.Is(e.Kind, ErrInvalidInput) {
		return e.Detail, true
	}
	return "", false
}

// NormalizeEmail is the account uniqueness key.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
