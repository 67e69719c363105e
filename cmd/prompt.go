package cmd

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/illarion/diarylock/internal/crypto"
)

// PasswordEnv supplies the password to every command non-interactively
const PasswordEnv = "DIARYLOCK_PASSWORD"

var errPasswordMismatch = errors.New("passwords do not match")

// envPassword returns a copy of $DIARYLOCK_PASSWORD, or nil when it is unset.
// The copy can be cleared by the caller.
func envPassword() []byte {
	if v := os.Getenv(PasswordEnv); v != "" {
		return []byte(v)
	}
	return nil
}

// promptPassword reads a password from the terminal without echo. The prompt
// goes to stderr so stdout only carries command output.
func promptPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("stdin is not a terminal, set %s", PasswordEnv)
	}

	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}
	return password, nil
}

// promptNewPassword asks for a password twice
func promptNewPassword(prompt string) ([]byte, error) {
	first, err := promptPassword(prompt)
	if err != nil {
		return nil, err
	}
	second, err := promptPassword("Confirm password: ")
	if err != nil {
		crypto.ClearBytes(first)
		return nil, err
	}
	return confirmed(first, second)
}

// confirmed returns first if both entries match. second is always cleared,
// first only on a mismatch.
func confirmed(first, second []byte) ([]byte, error) {
	defer crypto.ClearBytes(second)
	if subtle.ConstantTimeCompare(first, second) != 1 {
		crypto.ClearBytes(first)
		return nil, errPasswordMismatch
	}
	return first, nil
}
