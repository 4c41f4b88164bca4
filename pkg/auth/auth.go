// Package auth provides session id generation and the login password check.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/argon2"
)

// SessionIDLength is the length of a generated session id.
const SessionIDLength = 32

const sessionIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewSessionID generates a random 32-character alphanumeric session id. Ids
// are not checked for uniqueness; at this length a collision is treated as
// acceptably improbable.
func NewSessionID() (string, error) {
	b := make([]byte, SessionIDLength)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("auth: generate session id: %w", err)
	}
	for i := range b {
		b[i] = sessionIDAlphabet[int(b[i])%len(sessionIDAlphabet)]
	}
	return string(b), nil
}

// Checker verifies a login password.
type Checker interface {
	Check(password string) bool
}

// SharedSecret is the placeholder checker: a plain equality test against one
// fixed secret shared by every user.
type SharedSecret string

// Check implements Checker.
func (s SharedSecret) Check(password string) bool {
	return subtle.ConstantTimeCompare([]byte(s), []byte(password)) == 1
}

// Argon2 key derivation parameters.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
)

// Argon2Secret checks passwords against an argon2id hash so the plaintext
// secret never has to appear in server config.
type Argon2Secret struct {
	salt []byte
	key  []byte
}

// HashSecret derives an encoded "salt:key" hex pair for secret, suitable for
// the server's secret_hash config field.
func HashSecret(secret string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("auth: generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// ParseSecretHash parses the "salt:key" hex pair produced by HashSecret.
func ParseSecretHash(encoded string) (*Argon2Secret, error) {
	salt, key, ok := strings.Cut(encoded, ":")
	if !ok {
		return nil, fmt.Errorf("auth: malformed secret hash")
	}
	saltBytes, err := hex.DecodeString(salt)
	if err != nil {
		return nil, fmt.Errorf("auth: decode salt: %w", err)
	}
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("auth: decode key: %w", err)
	}
	if len(keyBytes) != argonKeyLen {
		return nil, fmt.Errorf("auth: secret hash has %d-byte key, want %d", len(keyBytes), argonKeyLen)
	}
	return &Argon2Secret{salt: saltBytes, key: keyBytes}, nil
}

// Check implements Checker.
func (a *Argon2Secret) Check(password string) bool {
	derived := argon2.IDKey([]byte(password), a.salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(derived, a.key) == 1
}
