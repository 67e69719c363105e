package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM authentication tag size
)

// ErrDecryptionFailed is returned for every failed decryption. A wrong
// password and a damaged ciphertext look the same.
var ErrDecryptionFailed = errors.New("decryption failed")

// EncryptedBlob is the output of one encryption call. All three parts are
// needed to decrypt and each encodes to base64 in JSON.
type EncryptedBlob struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	Salt       []byte `json:"salt"`
}

// Encryptor provides authenticated encryption under a single derived key
type Encryptor struct {
	key  []byte
	salt []byte
}

// NewEncryptor derives a key from password and salt and returns an
// encryptor bound to it.
func NewEncryptor(password, salt []byte, p Params) *Encryptor {
	return &Encryptor{
		key:  DeriveKey(password, salt, p),
		salt: append([]byte(nil), salt...),
	}
}

// Salt returns a copy of the salt the key was derived from
func (e *Encryptor) Salt() []byte {
	return append([]byte(nil), e.salt...)
}

func (e *Encryptor) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext using AES-GCM with a fresh random IV
func (e *Encryptor) Seal(plaintext []byte) (*EncryptedBlob, error) {
	gcm, err := e.gcm()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, NonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return &EncryptedBlob{
		Ciphertext: gcm.Seal(nil, iv, plaintext, nil),
		IV:         iv,
		Salt:       e.Salt(),
	}, nil
}

// Open decrypts and authenticates blob. The blob's salt must be the one this
// encryptor's key was derived from.
func (e *Encryptor) Open(blob *EncryptedBlob) ([]byte, error) {
	if blob == nil || len(blob.IV) != NonceSize || len(blob.Ciphertext) < TagSize {
		return nil, ErrDecryptionFailed
	}
	if !bytes.Equal(blob.Salt, e.salt) {
		return nil, ErrDecryptionFailed
	}

	gcm, err := e.gcm()
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := gcm.Open(nil, blob.IV, blob.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// Destroy clears the encryptor's key from memory
func (e *Encryptor) Destroy() {
	ClearBytes(e.key)
}

// ClearBytes zeroes key material and plaintext once it is no longer needed
func ClearBytes(b []byte) {
	clear(b)
}

// Encrypt encrypts plaintext under a key derived from password. A nil salt
// makes Encrypt generate a new one.
func Encrypt(plaintext, password, salt []byte, p Params) (*EncryptedBlob, error) {
	if salt == nil {
		var err error
		if salt, err = GenerateSalt(); err != nil {
			return nil, err
		}
	}

	enc := NewEncryptor(password, salt, p)
	defer enc.Destroy()

	return enc.Seal(plaintext)
}

// Decrypt re-derives the key from blob.Salt and the candidate password and
// opens the blob. Any failure yields ErrDecryptionFailed.
func Decrypt(blob *EncryptedBlob, password []byte, p Params) ([]byte, error) {
	if blob == nil {
		return nil, ErrDecryptionFailed
	}

	enc := NewEncryptor(password, blob.Salt, p)
	defer enc.Destroy()

	return enc.Open(blob)
}
