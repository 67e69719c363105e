package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/keyring"
)

// KeyringSave saves a locked diary's password to the OS keyring
func KeyringSave(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	password, err := promptPassword("Enter password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(password)

	if err := s.coord.VerifyPassword(ctx, diaryID, password); err != nil {
		HandleError(err)
	}

	if err := keyring.SavePassword(diaryID, string(password)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		os.Exit(1)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes a diary's password from the OS keyring
func KeyringDelete(diaryID string) {
	if !keyring.HasPassword(diaryID) {
		fmt.Println("No password stored in keyring")
		return
	}
	if err := keyring.DeletePassword(diaryID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to remove from keyring: %s\n", err)
		os.Exit(1)
	}
	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a diary's password is stored in the keyring
func KeyringStatus(diaryID string) {
	if keyring.HasPassword(diaryID) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}
