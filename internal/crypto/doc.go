// Package crypto provides the cryptographic primitives behind diary locking.
//
// Encryption uses AES-256-GCM with:
//   - key derived from the password via PBKDF2-HMAC-SHA256
//   - 12-byte random IV per encryption operation, stored next to the ciphertext
//   - authenticated encryption, so tampering and wrong passwords both fail Open
//
// Key derivation parameters travel as an explicit Params value that is
// persisted with every lock record. DefaultParams is version 1:
//   - 32-byte random salt (stored unencrypted)
//   - 100,000 iterations
//   - 256-bit key
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
