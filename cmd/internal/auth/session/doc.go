// Package session issues and validates AxionX sign-in sessions.
//
// Access tokens are short-lived PASETO v4.public tokens carrying the user and session
// ids. Refresh tokens are opaque random strings; only their digest is stored. Every
// refresh rotates the token, and presenting an already-rotated token revokes all of
// the user's sessions.
package session
