package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/strength"
)

// Strength scores a password without storing it
func Strength() {
	password := envPassword()
	if password == nil {
		var err error
		password, err = promptPassword("Password to check: ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}
	defer crypto.ClearBytes(password)

	result := strength.Score(string(password))
	fmt.Printf("Strength: %s (%d/%d)\n", result.Label(), result.Score, strength.MaxScore)
	for _, f := range result.Feedback {
		fmt.Printf("  - %s\n", f)
	}
	if !result.IsStrong {
		fmt.Println("This password cannot be used to lock a diary")
		os.Exit(1)
	}
}
