package core

import (
	"errors"
	"strings"

	"github.com/illarion/diarylock/internal/payload"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrWrongPassword = errors.New("incorrect password")
	ErrNotLocked     = errors.New("diary is not locked")
	ErrAlreadyLocked = errors.New("diary is already locked")

	// ErrPayloadCorrupted means the stored lock payload is damaged. It is
	// not caused by the password the user typed.
	ErrPayloadCorrupted = payload.ErrPayloadCorrupted
)

// ValidationError rejects input before any cryptographic work is done
type ValidationError struct {
	Reason   string
	Feedback []string
}

func (e *ValidationError) Error() string {
	if len(e.Feedback) == 0 {
		return e.Reason
	}
	return e.Reason + ": " + strings.Join(e.Feedback, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
