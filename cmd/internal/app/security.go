package app

import (
	"errors"

	"axionx/cmd/security/token"
)

// ValidateSecurityConfig enforces the refresh-token hashing policy at startup and
// returns the hasher the session service must use.
func ValidateSecurityConfig(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: AXIONX_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: AXIONX_REQUIRE_TOKEN_HMAC=true but " + token.HMACEnvKey + " is too short")
	case err != nil:
		return token.Hasher{}, err
	}
	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: token hasher is not in HMAC mode")
	}
	return h, nil
}
