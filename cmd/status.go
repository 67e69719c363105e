package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/illarion/diarylock/internal/core"
	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/keyring"
)

// Status shows the lock state of one diary, or of every diary when diaryID
// is empty. Does not require a password.
func Status(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	diaries := []string{diaryID}
	if diaryID == "" {
		var err error
		diaries, err = s.store.ListDiaries(ctx)
		if err != nil {
			HandleError(err)
		}
		if len(diaries) == 0 {
			fmt.Println("No diaries found")
			fmt.Println("Use 'diarylock put' to add a page")
			return
		}
	}

	for i, id := range diaries {
		if i > 0 {
			fmt.Println()
		}
		status, err := s.coord.Status(ctx, id)
		if err != nil {
			HandleError(err)
		}
		printStatus(status)
	}
}

func printStatus(status *core.Status) {
	state := "unlocked"
	if status.Locked {
		state = "locked"
	}
	fmt.Printf("Diary %s: %s\n", status.DiaryID, state)
	fmt.Printf("  Pages: %d (%d with content)\n", status.Pages, status.WithContent)

	if status.LockID != "" {
		fmt.Printf("  Lock: %s (created %s, updated %s)\n",
			status.LockID,
			status.CreatedAt.Format(time.RFC3339),
			status.UpdatedAt.Format(time.RFC3339))
	}
	if status.Locked && status.KDF != nil {
		fmt.Printf("  Encryption: %s\n", describeParams(status.KDF))
		fmt.Printf("  Encrypted pages: %d\n", status.EncryptedPages)
	}
	if keyring.HasPassword(status.DiaryID) {
		fmt.Println("  Password: stored in keyring")
	}

	if status.PayloadDamaged {
		fmt.Println("  ! stored lock payload is damaged")
	}
	if status.NeedsRecovery {
		fmt.Println("  ! lock was interrupted, some pages still hold content")
		fmt.Printf("    Run 'diarylock diff %s' to inspect, then 'diarylock recover %s'\n", status.DiaryID, status.DiaryID)
	}
}

// describeParams names the cipher and key derivation of a lock
func describeParams(p *crypto.Params) string {
	return fmt.Sprintf("AES-%d-GCM, %s v%d, %d iterations",
		p.KeyLengthBits, p.Algorithm, p.Version, p.Iterations)
}
