// Package password hashes account passwords with Argon2id and enforces the
// sign-up password policy.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"
)

const (
	MinLength = 8
	MaxLength = 128
)

var (
	ErrTooShort = errors.New("password too short")
	ErrTooLong  = errors.New("password too long")
)

type params struct {
	memory  uint32
	time    uint32
	threads uint8
	keyLen  uint32
	saltLen int
}

var current = params{
	memory:  64 * 1024,
	time:    1,
	threads: 4,
	keyLen:  32,
	saltLen: 16,
}

// Validate applies the length policy. Length is counted in runes so that
// non-ASCII passphrases are not penalised.
func Validate(password string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(password))
	switch {
	case n < MinLength:
		return ErrTooShort
	case n > MaxLength:
		return ErrTooLong
	}
	return nil
}

// Hash returns a PHC-formatted Argon2id hash.
func Hash(password string) (string, error) {
	salt := make([]byte, current.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, current.time, current.memory, current.threads, current.keyLen)
	return encode(current, salt, key), nil
}

// Verify reports whether password matches encoded. Malformed hashes never match.
func Verify(password, encoded string) bool {
	p, salt, key, ok := decode(encoded)
	if !ok {
		return false
	}
	check := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, check) == 1
}

// VerifyAbsent spends the same work as Verify for a login against an unknown
// email, so response timing does not reveal which homeowners have accounts.
func VerifyAbsent(password string) {
	argon2.IDKey([]byte(password), make([]byte, current.saltLen), current.time, current.memory, current.threads, current.keyLen)
}

func encode(p params, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func decode(encoded string) (params, []byte, []byte, bool) {
	var p params
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, false
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, false
	}
	if p.memory == 0 || p.time == 0 || p.threads == 0 {
		return p, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, false
	}
	return p, salt, key, true
}
