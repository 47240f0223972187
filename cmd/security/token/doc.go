// Package token hashes opaque refresh tokens for storage.
//
// With a key configured (AXIONX_TOKEN_HMAC_KEY) digests are HMAC-SHA256; without one
// they fall back to plain SHA-256, which is only acceptable in development.
// Output is always 64 hex characters.
package token
