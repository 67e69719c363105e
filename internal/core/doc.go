// Package core provides the diary lock coordinator.
//
// A diary is either Unlocked (no lock record, or a record with locked=false)
// or Locked. Core operations:
//   - LockDiary: encrypt every page into the lock record, then clear page content
//   - UnlockDiary: verify the password, decrypt the whole payload, restore pages
//   - ClearLock: drop the lock record, used when the diary itself is deleted
//
// Maintenance operations:
//   - Status: lock state without a password
//   - Recover: finish a lock that was interrupted while clearing pages
//   - ChangePassword: re-encrypt a Locked diary under a new password
//   - Diff: compare the locked copy with content still present in storage
//
// Wrong passwords and tampered ciphertext both surface as ErrWrongPassword.
// ErrPayloadCorrupted is reserved for structural damage: a payload that does
// not decode, a malformed blob, or an entry sealed under a foreign salt.
package core
