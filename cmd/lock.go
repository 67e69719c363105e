package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/keyring"
)

// Lock encrypts a diary's pages and clears their content
func Lock(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	password := GetNewPasswordOrExit("Enter new diary password: ")
	defer crypto.ClearBytes(password)

	if err := s.coord.LockDiary(ctx, diaryID, password); err != nil {
		HandleError(err)
	}
	fmt.Printf("diary %s locked\n", diaryID)
}

// Unlock restores a diary's pages. With save the password is stored in the
// OS keyring afterwards.
func Unlock(ctx context.Context, diaryID string, save bool) {
	s := openSession()
	defer s.Close()

	password := GetPasswordOrExit(diaryID, "Enter password: ")
	defer crypto.ClearBytes(password)

	if err := s.coord.UnlockDiary(ctx, diaryID, password); err != nil {
		HandleError(err)
	}
	fmt.Printf("diary %s unlocked\n", diaryID)

	if save {
		if err := keyring.SavePassword(diaryID, string(password)); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
			return
		}
		fmt.Println("Password saved to keyring")
	}
}

// Clear removes a diary's lock record without a password. Content that was
// only held in the lock payload is lost.
func Clear(ctx context.Context, diaryID string, force bool) {
	s := openSession()
	defer s.Close()

	status, err := s.coord.Status(ctx, diaryID)
	if err != nil {
		HandleError(err)
	}
	if status.Locked && !force {
		fmt.Fprintln(os.Stderr, "Error: diary is locked, clearing would discard its encrypted content")
		fmt.Fprintln(os.Stderr, "Use -force to clear anyway")
		os.Exit(1)
	}

	if err := s.coord.ClearLock(ctx, diaryID); err != nil {
		HandleError(err)
	}
	if err := keyring.DeletePassword(diaryID); err != nil {
		s.log.Warn("failed to remove keyring entry", "diary_id", diaryID, "error", err)
	}
	fmt.Printf("lock cleared for diary %s\n", diaryID)
}

// Recover finishes an interrupted lock
func Recover(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	n, err := s.coord.Recover(ctx, diaryID)
	if err != nil {
		HandleError(err)
	}
	if n == 0 {
		fmt.Println("nothing to recover")
		return
	}
	fmt.Printf("sanitized %d page(s)\n", n)
}
