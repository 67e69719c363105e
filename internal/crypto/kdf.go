package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	AlgorithmPBKDF2SHA256 = "pbkdf2-sha256"

	SaltSize = 32

	DefaultVersion       = 1
	DefaultIterations    = 100000
	DefaultKeyLengthBits = 256
)

// verifierContext is appended to the salt when deriving the password hash so
// the stored verifier never equals the encryption key.
var verifierContext = []byte("diarylock/password-verifier/v1")

var ErrInvalidParams = errors.New("invalid key derivation parameters")

// Params is the versioned key derivation parameter set. It is stored with
// every lock record, so changing DefaultParams never affects diaries that are
// already locked.
type Params struct {
	Version       int    `json:"version"`
	Algorithm     string `json:"algorithm"`
	Iterations    int    `json:"iterations"`
	KeyLengthBits int    `json:"keyLengthBits"`
}

// DefaultParams returns the parameter set used for new locks
func DefaultParams() Params {
	return Params{
		Version:       DefaultVersion,
		Algorithm:     AlgorithmPBKDF2SHA256,
		Iterations:    DefaultIterations,
		KeyLengthBits: DefaultKeyLengthBits,
	}
}

// IsZero reports whether p was never set, e.g. a record written before
// parameters were persisted.
func (p Params) IsZero() bool {
	return p == Params{}
}

// Validate checks that p describes a derivation this package can perform
func (p Params) Validate() error {
	if p.Algorithm != AlgorithmPBKDF2SHA256 {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidParams, p.Algorithm)
	}
	if p.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalidParams, p.Iterations)
	}
	switch p.KeyLengthBits {
	case 128, 192, 256:
	default:
		return fmt.Errorf("%w: key length must be 128, 192 or 256 bits, got %d", ErrInvalidParams, p.KeyLengthBits)
	}
	return nil
}

// KeyLength returns the derived key length in bytes
func (p Params) KeyLength() int {
	return p.KeyLengthBits / 8
}

// DeriveKey derives a symmetric key from a password and salt.
// The same inputs always produce the same key. Invalid params are a
// programming error and cause a panic.
func DeriveKey(password, salt []byte, p Params) []byte {
	if err := p.Validate(); err != nil {
		panic(err)
	}
	return pbkdf2.Key(password, salt, p.Iterations, p.KeyLength(), sha256.New)
}

// HashPassword derives the verifier stored in a lock record. It is only good
// for an equality check; decryption always re-derives the key from the
// candidate password.
func HashPassword(password, salt []byte, p Params) []byte {
	verifierSalt := make([]byte, 0, len(salt)+len(verifierContext))
	verifierSalt = append(verifierSalt, salt...)
	verifierSalt = append(verifierSalt, verifierContext...)
	return DeriveKey(password, verifierSalt, p)
}

// VerifyPassword reports in constant time whether password and salt produce
// the stored verifier hash.
func VerifyPassword(password, salt []byte, p Params, hash []byte) bool {
	candidate := HashPassword(password, salt, p)
	defer ClearBytes(candidate)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

// GenerateSalt returns a fresh random salt of SaltSize bytes
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
