// Package security holds the credential primitives: password hashing and
// reset token generation.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	argon2idPrefix = "$argon2id$"
	dummyPassword  = "dummy-password-for-timing"
	maxCostFactor  = 4
)

var ErrEmptyPassword = oops.Code("PASSWORD_EMPTY").Errorf("password cannot be empty")

type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify reports (true, nil) on match, (false, nil) on mismatch and an
	// error only when the stored hash cannot be parsed.
	Verify(password, encodedHash string) (bool, error)
	// VerifyDummy burns the same work as a real verification. Used when the
	// account does not exist so response timing does not reveal it.
	VerifyDummy(password string)
	// NeedsRehash reports whether a hash that just verified should be
	// replaced with one made by the current algorithm and parameters.
	NeedsRehash(encodedHash string) bool
}

type Argon2Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	SaltLen uint32
	KeyLen  uint32
}

// DefaultArgon2Params follows the OWASP argon2id baseline.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Time:    1,
		Memory:  64 * 1024,
		Threads: 4,
		SaltLen: 16,
		KeyLen:  32,
	}
}

type Argon2idHasher struct {
	params Argon2Params

	dummyOnce sync.Once
	dummyHash string
}

func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	return &Argon2idHasher{params: params}
}

func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("PASSWORD_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(password, encodedHash string) (bool, error) {
	if isBcrypt(encodedHash) {
		err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
		if err == nil {
			return true, nil
		}
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return false, nil
		}
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}

	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != "argon2id" {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}
	if threads == 0 || threads > 255 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("invalid parallelism: %d", threads)
	}
	maxMemory, maxTime := h.costCeiling()
	if memory == 0 || memory > maxMemory {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("memory cost out of range: %d", memory)
	}
	if iterations == 0 || iterations > maxTime {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("time cost out of range: %d", iterations)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("PASSWORD_INVALID_HASH").Wrap(err)
	}
	if len(expected) == 0 || len(expected) > 1024 {
		return false, oops.Code("PASSWORD_INVALID_HASH").Errorf("invalid key length: %d", len(expected))
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(len(expected)))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// costCeiling bounds the parameters a stored hash may ask for, so an
// unreadable row cannot force an arbitrary allocation.
func (h *Argon2idHasher) costCeiling() (memory, iterations uint32) {
	base := DefaultArgon2Params()
	memory = max(h.params.Memory, base.Memory) * maxCostFactor
	iterations = max(h.params.Time, base.Time) * maxCostFactor
	return memory, iterations
}

func (h *Argon2idHasher) VerifyDummy(password string) {
	h.dummyOnce.Do(func() {
		hash, err := h.Hash(dummyPassword)
		if err == nil {
			h.dummyHash = hash
		}
	})
	if h.dummyHash == "" {
		return
	}
	_, _ = h.Verify(password, h.dummyHash)
}

// NeedsRehash reports whether encodedHash was produced by another algorithm
// or with weaker parameters than the hasher's.
func (h *Argon2idHasher) NeedsRehash(encodedHash string) bool {
	if !strings.HasPrefix(encodedHash, argon2idPrefix) {
		return true
	}
	want := fmt.Sprintf("m=%d,t=%d,p=%d", h.params.Memory, h.params.Time, h.params.Threads)
	parts := strings.Split(encodedHash, "$")
	return len(parts) != 6 || parts[3] != want
}

func isBcrypt(encodedHash string) bool {
	return strings.HasPrefix(encodedHash, "$2a$") ||
		strings.HasPrefix(encodedHash, "$2b$") ||
		strings.HasPrefix(encodedHash, "$2y$")
}
