package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

const (
	defaultArgonMemory  = 64 * 1024
	defaultArgonTime    = 2
	defaultArgonThreads = 1
	argonSaltLength     = 16
	argonKeyLength      = 32

	// Bounds on parameters read back from storage. A stored hash outside
	// them is corrupt, never something to spend CPU or memory on.
	maxArgonMemory  = 1 << 20 // KiB
	maxArgonTime    = 10
	minArgonSaltLen = 8

	argonTag = "$argon2"
)

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports whether password matches hash. A hash that is not an
	// argon2 string yields ErrCorruptCredential, never a plain mismatch.
	Verify(hash, password string) (bool, error)
}

// Argon2idHasher produces PHC-formatted argon2id strings.
type Argon2idHasher struct {
	memory  uint32
	time    uint32
	threads uint8
}

// NewArgon2idHasher returns a hasher with production parameters.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{memory: defaultArgonMemory, time: defaultArgonTime, threads: defaultArgonThreads}
}

// NewArgon2idHasherWithParams is used where hashing cost has to be cheap, such as tests.
func NewArgon2idHasherWithParams(memory, time uint32, threads uint8) *Argon2idHasher {
	return &Argon2idHasher{memory: memory, time: time, threads: threads}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrapf(err, "generate salt")
	}
	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, argonKeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.memory,
		h.time,
		h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(hash, password string) (bool, error) {
	if err := CheckFormat(hash); err != nil {
		return false, err
	}
	params, salt, expected, err := decodeArgonHash(hash)
	if err != nil {
		return false, oops.Code("AUTH_CORRUPT_CREDENTIAL").Wrap(fmt.Errorf("%w: %v", ErrCorruptCredential, err))
	}
	computed := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// CheckFormat rejects stored values that do not carry the argon2 tag.
func CheckFormat(hash string) error {
	if !strings.HasPrefix(hash, argonTag) {
		return oops.Code("AUTH_CORRUPT_CREDENTIAL").Wrap(ErrCorruptCredential)
	}
	return nil
}

type argonParams struct {
	memory  uint32
	time    uint32
	threads uint8
}

func decodeArgonHash(hash string) (argonParams, []byte, []byte, error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		return argonParams{}, nil, nil, fmt.Errorf("expected 6 segments, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return argonParams{}, nil, nil, fmt.Errorf("unsupported variant %q", parts[1])
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("version: %w", err)
	}
	if version != argon2.Version {
		return argonParams{}, nil, nil, fmt.Errorf("unsupported version %d", version)
	}
	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("parameters: %w", err)
	}
	if threads == 0 || threads > 255 || time == 0 || time > maxArgonTime ||
		memory < 8*threads || memory > maxArgonMemory {
		return argonParams{}, nil, nil, fmt.Errorf("parameters m=%d,t=%d,p=%d out of range", memory, time, threads)
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("salt: %w", err)
	}
	if len(salt) < minArgonSaltLen {
		return argonParams{}, nil, nil, fmt.Errorf("salt length %d too short", len(salt))
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argonParams{}, nil, nil, fmt.Errorf("key: %w", err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return argonParams{}, nil, nil, fmt.Errorf("key length %d out of range", len(key))
	}
	return argonParams{memory: memory, time: time, threads: uint8(threads)}, salt, key, nil
}
