// Package password hashes and verifies account passwords with Argon2id.
//
// Hashes are stored in the PHC string format
// ($argon2id$v=19$m=...,t=...,p=...$salt$key) so that cost parameters travel with
// each hash and can be raised without invalidating existing accounts.
package password
