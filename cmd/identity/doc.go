// Package identity owns AxionX user accounts: email identities with an Argon2id
// password credential. Sessions live in cmd/internal/auth/session; this package only
// answers "who is this user" and "does this password match".
package identity
