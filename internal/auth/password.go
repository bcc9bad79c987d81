package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id defaults (OWASP recommendation, m=64MiB t=3 p=1).
const (
	defaultArgonTime    = 3
	defaultArgonMemory  = 64 * 1024
	defaultArgonThreads = 1
	argonKeyLen         = 32
	argonSaltLen        = 16

	// DefaultMaxPasswordLength bounds hashing cost per request.
	DefaultMaxPasswordLength = 1024
	DefaultMinPasswordLength = 8
)

// HashParams are the Argon2id cost parameters and input bound.
type HashParams struct {
	Memory    uint32 // KiB
	Time      uint32
	Threads   uint8
	MaxLength int // bytes
	// MinLength is enforced by CheckPolicy, not by Hash.
	MinLength int
}

// DefaultHashParams returns the production defaults.
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:    defaultArgonMemory,
		Time:      defaultArgonTime,
		Threads:   defaultArgonThreads,
		MaxLength: DefaultMaxPasswordLength,
		MinLength: DefaultMinPasswordLength,
	}
}

// Hasher hashes and verifies passwords. It is immutable after construction
// and safe for concurrent use.
type Hasher struct {
	params HashParams

	dummyOnce sync.Once
	dummy     string
}

// NewHasher creates a Hasher; zero fields in p take the defaults.
func NewHasher(p HashParams) *Hasher {
	d := DefaultHashParams()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Time == 0 {
		p.Time = d.Time
	}
	if p.Threads == 0 {
		p.Threads = d.Threads
	}
	if p.MaxLength <= 0 {
		p.MaxLength = d.MaxLength
	}
	if p.MinLength < 0 {
		p.MinLength = 0
	}
	return &Hasher{params: p}
}

// Params returns the hasher's parameters.
func (h *Hasher) Params() HashParams {
	return h.params
}

// Hash produces a salted Argon2id hash in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// It fails only for an empty or over-long plaintext, or if the system
// random source fails.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > h.params.MaxLength {
		return "", ErrPasswordTooLong
	}

	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.Memory, h.params.Threads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// CheckPolicy applies the length rules for a new password.
func (h *Hasher) CheckPolicy(plaintext string) error {
	switch {
	case plaintext == "":
		return ErrEmptyPassword
	case len(plaintext) > h.params.MaxLength:
		return ErrPasswordTooLong
	case len(plaintext) < h.params.MinLength:
		return ErrPasswordTooShort
	}
	return nil
}

// Verify reports whether plaintext matches encodedHash. It accepts Argon2id
// PHC strings and bcrypt hashes ($2a$, $2b$, $2y$). Malformed hashes,
// empty or over-long input all yield false. The final comparison is
// constant-time.
func (h *Hasher) Verify(plaintext, encodedHash string) bool {
	if plaintext == "" || len(plaintext) > h.params.MaxLength {
		return false
	}

	if isBcrypt(encodedHash) {
		if cost, err := bcrypt.Cost([]byte(encodedHash)); err != nil || cost > maxBcryptCost {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(plaintext)) == nil
	}

	p, salt, want, ok := decodePHC(encodedHash)
	if !ok {
		return false
	}

	got := argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, uint32(len(want))) //nolint:gosec // len bounded by decodePHC
	return subtle.ConstantTimeCompare(got, want) == 1
}

// NeedsRehash reports whether encodedHash should be replaced on the next
// successful login: bcrypt hashes, unparseable hashes, and Argon2id hashes
// with different cost parameters.
func (h *Hasher) NeedsRehash(encodedHash string) bool {
	p, _, _, ok := decodePHC(encodedHash)
	if !ok {
		return true
	}
	return p.Memory != h.params.Memory || p.Time != h.params.Time || p.Threads != h.params.Threads
}

// DummyHash returns a valid hash of a random password, computed once.
// Login verifies against it when the username is unknown so that both
// paths cost the same.
func (h *Hasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		buf := make([]byte, 24)
		_, _ = rand.Read(buf) //nolint:errcheck // any content works for a dummy
		hash, err := h.Hash(base64.RawStdEncoding.EncodeToString(buf))
		if err != nil {
			// Unreachable for a fixed-length non-empty input.
			hash = "$argon2id$v=19$m=1,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
		}
		h.dummy = hash
	})
	return h.dummy
}

func isBcrypt(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// Upper bounds on the work a stored hash may demand. Anything above is
// treated as corrupt and fails verification.
const (
	maxDecodedKeyLen = 128
	maxMemoryKiB     = 1 << 21 // 2 GiB
	maxTime          = 16
	maxThreads       = 64
	maxBcryptCost    = 16
)

// decodePHC parses a PHC-format Argon2id hash string.
func decodePHC(encoded string) (HashParams, []byte, []byte, bool) {
	var p HashParams

	parts := strings.Split(encoded, "$")
	// Expected: ["", "argon2id", "v=19", "m=65536,t=3,p=1", "<salt>", "<hash>"]
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return p, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, false
	}
	if p.Memory == 0 || p.Time == 0 || p.Threads == 0 {
		return p, nil, nil, false
	}
	if p.Memory > maxMemoryKiB || p.Time > maxTime || p.Threads > maxThreads {
		return p, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, false
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxDecodedKeyLen {
		return p, nil, nil, false
	}

	return p, salt, key, true
}
