package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/diarylock/internal/config"
	"github.com/illarion/diarylock/internal/storage"
)

// Compact compacts the bbolt database to reclaim unused space
func Compact(_ context.Context) {
	s := openSession()
	defer s.Close()

	db, ok := s.store.(*storage.Bolt)
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: compact is only supported by the %s backend\n", config.BackendBolt)
		os.Exit(1)
	}

	info, err := os.Stat(db.Path())
	if err != nil {
		HandleError(err)
	}
	sizeBefore := info.Size()

	if err := db.Compact(); err != nil {
		HandleError(err)
	}

	info, err = os.Stat(db.Path())
	if err != nil {
		HandleError(err)
	}
	sizeAfter := info.Size()

	fmt.Printf("Compacted: %s -> %s\n", formatSize(sizeBefore), formatSize(sizeAfter))
}
