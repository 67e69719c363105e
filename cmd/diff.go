package cmd

import (
	"context"
	"fmt"

	"github.com/illarion/diarylock/internal/core"
	"github.com/illarion/diarylock/internal/crypto"
)

// Diff compares a locked diary's encrypted copy with the content still in
// storage
func Diff(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	password := GetPasswordOrExit(diaryID, "Enter password: ")
	defer crypto.ClearBytes(password)

	diffs, err := s.coord.Diff(ctx, diaryID, password)
	if err != nil {
		HandleError(err)
	}

	changed := 0
	for _, d := range diffs {
		switch d.State {
		case core.PageSanitized:
			continue
		case core.PageModified:
			fmt.Print(d.Diff)
		default:
			fmt.Printf("%s: %s\n", d.PageID, d.State)
		}
		changed++
	}
	if changed == 0 {
		fmt.Println("all pages sanitized")
	}
}
