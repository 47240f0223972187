package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Policy violations. The identity layer turns these into form messages.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("password too weak")
)

var commonPasswords = map[string]struct{}{
	"password": {}, "password1": {}, "password123": {}, "123456": {}, "1234567": {},
	"12345678": {}, "123456789": {}, "qwerty": {}, "qwerty123": {}, "abc123": {},
	"111111": {}, "letmein": {}, "welcome": {}, "iloveyou": {},
}

// Validate checks the length bounds in runes and, when enabled, rejects
// trivially guessable passwords.
func (c Config) Validate(pw string) error {
	n := utf8.RuneCountInString(pw)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && veryWeak(pw):
		return ErrWeakPassword
	}
	return nil
}

func veryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := commonPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	repeated := strings.IndexFunc(s, func(r rune) bool { return r != first }) < 0
	digits := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) }) < 0

	return repeated || (digits && utf8.RuneCountInString(s) < 10)
}
