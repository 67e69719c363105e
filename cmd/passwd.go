package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/keyring"
)

// Passwd changes the password of a locked diary
func Passwd(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	currentPassword := GetPasswordOrExit(diaryID, "Enter current password: ")
	defer crypto.ClearBytes(currentPassword)

	// Verify before prompting for the new password
	if err := s.coord.VerifyPassword(ctx, diaryID, currentPassword); err != nil {
		HandleError(err)
	}

	newPassword, err := promptNewPassword("Enter new password: ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
	defer crypto.ClearBytes(newPassword)

	if err := s.coord.ChangePassword(ctx, diaryID, currentPassword, newPassword); err != nil {
		HandleError(err)
	}

	if keyring.HasPassword(diaryID) {
		if err := keyring.SavePassword(diaryID, string(newPassword)); err == nil {
			fmt.Println("Keyring updated with new password")
		}
	}

	fmt.Println("password changed successfully")
}
