package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "diarylock"

// ErrNotFound is returned when no password is stored for a diary
var ErrNotFound = keyring.ErrNotFound

// SavePassword stores a diary password in the OS keyring
func SavePassword(diaryID string, password string) error {
	return keyring.Set(serviceName, diaryID, password)
}

// GetPassword retrieves a diary password from the OS keyring
func GetPassword(diaryID string) (string, error) {
	return keyring.Get(serviceName, diaryID)
}

// DeletePassword removes a diary password from the OS keyring.
// Deleting a password that was never stored is not an error.
func DeletePassword(diaryID string) error {
	err := keyring.Delete(serviceName, diaryID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(diaryID string) bool {
	_, err := keyring.Get(serviceName, diaryID)
	return err == nil
}
