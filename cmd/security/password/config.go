package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Argon2idParams controls Argon2id cost. MemoryKiB is in KiB as argon2.IDKey expects.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds accepted passwords. MinLength matches the signup form (6).
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
}

// DefaultConfig returns interactive-login costs with parallelism clamped to [1..4].
func DefaultConfig() Config {
	threads := min(max(runtime.NumCPU(), 1), 4)

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      6,
			MaxLength:      256,
			RejectVeryWeak: true,
		},
	}
}

type envBinding struct {
	key   string
	apply func(cfg *Config, raw string) error
}

var envBindings = []envBinding{
	{"AXIONX_PASSWORD_MIN_LEN", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 1, 1024)
		cfg.Policy.MinLength = int(n)
		return err
	}},
	{"AXIONX_PASSWORD_MAX_LEN", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 1, 4096)
		cfg.Policy.MaxLength = int(n)
		return err
	}},
	{"AXIONX_PASSWORD_REJECT_VERY_WEAK", func(cfg *Config, raw string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		cfg.Policy.RejectVeryWeak = b
		return err
	}},
	{"AXIONX_ARGON2_MEMORY_KIB", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 8*1024, 1024*1024)
		cfg.Params.MemoryKiB = uint32(n)
		return err
	}},
	{"AXIONX_ARGON2_ITERATIONS", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 1, 20)
		cfg.Params.Iterations = uint32(n)
		return err
	}},
	{"AXIONX_ARGON2_PARALLELISM", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 1, math.MaxUint8)
		cfg.Params.Parallelism = uint8(n) // #nosec G115 -- bounded by parseUintRange.
		return err
	}},
	{"AXIONX_ARGON2_SALT_LEN", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 8, 64)
		cfg.Params.SaltLength = uint32(n)
		return err
	}},
	{"AXIONX_ARGON2_KEY_LEN", func(cfg *Config, raw string) error {
		n, err := parseUintRange(raw, 16, 64)
		cfg.Params.KeyLength = uint32(n)
		return err
	}},
}

// FromEnv starts from DefaultConfig and applies every AXIONX_PASSWORD_* and
// AXIONX_ARGON2_* variable that is set.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	for _, b := range envBindings {
		raw, ok := os.LookupEnv(b.key)
		if !ok {
			continue
		}
		if err := b.apply(&cfg, raw); err != nil {
			return Config{}, fmt.Errorf("%s: %w", b.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength,
		)
	}
	return cfg, nil
}

func parseUintRange(raw string, lo, hi uint64) (uint64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("out of range [%d..%d]", lo, hi)
	}
	return n, nil
}
