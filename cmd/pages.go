package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/illarion/diarylock/internal/storage"
)

// Put imports a file as the document of a diary page, creating the page if
// it does not exist yet.
func Put(ctx context.Context, diaryID, pageID, file, title string, scene bool) {
	s := openSession()
	defer s.Close()

	// #nosec G304 - file path is provided by the user
	data, err := os.ReadFile(file)
	if err != nil {
		HandleError(fmt.Errorf("failed to read %s: %w", file, err))
	}

	status, err := s.coord.Status(ctx, diaryID)
	if err != nil {
		HandleError(err)
	}
	if status.Locked {
		fmt.Fprintln(os.Stderr, "Error: diary is locked")
		fmt.Fprintln(os.Stderr, "Unlock it before editing pages")
		os.Exit(1)
	}

	pages, err := s.store.LoadPages(ctx, diaryID)
	if err != nil {
		HandleError(err)
	}

	now := storage.NowMillis()
	page := &storage.Page{ID: pageID, DiaryID: diaryID, CreatedAt: now}
	for i := range pages {
		if pages[i].ID == pageID {
			page = &pages[i]
			break
		}
	}

	if title != "" {
		page.Title = pageTitle(title)
	} else if page.Title == "" {
		page.Title = pageTitle(strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)))
	}
	if scene {
		page.Scene = data
	} else {
		page.Document = data
	}
	page.UpdatedAt = now

	if err := s.store.SavePage(ctx, page); err != nil {
		HandleError(err)
	}
	fmt.Printf("saved page %s (%s)\n", pageID, formatSize(int64(len(data))))
}

// Pages lists the pages of a diary and whether they hold content
func Pages(ctx context.Context, diaryID string) {
	s := openSession()
	defer s.Close()

	pages, err := s.store.LoadPages(ctx, diaryID)
	if err != nil {
		HandleError(err)
	}
	if len(pages) == 0 {
		fmt.Println("  (no pages)")
		return
	}

	for _, p := range pages {
		icon := "*"
		state := "sanitized"
		if p.HasContent() {
			icon = "."
			state = formatSize(int64(len(p.Document) + len(p.Scene)))
		}
		fmt.Printf("  %s %s %q (%s)\n", icon, p.ID, p.Title, state)
	}
}

func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

// pageTitle makes a title from user input. File names need not be UTF-8;
// invalid bytes become U+FFFD.
func pageTitle(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
