package core

import (
	"context"
	"fmt"
	"time"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/payload"
	"github.com/illarion/diarylock/internal/storage"
)

// Status describes a diary's lock state. It is computed without a password.
type Status struct {
	DiaryID        string
	Locked         bool
	LockID         string
	Pages          int // pages in storage
	WithContent    int // pages in storage that still hold content
	EncryptedPages int // entries in the lock payload
	KDF            *crypto.Params
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// NeedsRecovery is set when the diary is Locked but some captured page
	// still holds content, i.e. a lock was interrupted during sanitization.
	NeedsRecovery bool
	// PayloadDamaged is set when the Locked record's payload does not decode
	PayloadDamaged bool
}

// Status reports the lock state of a diary
func (c *Coordinator) Status(ctx context.Context, diaryID string) (*Status, error) {
	if err := validateDiaryID(diaryID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	record, err := c.store.LoadLock(ctx, diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lock record: %w", err)
	}
	pages, err := c.store.LoadPages(ctx, diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}

	status := &Status{DiaryID: diaryID, Pages: len(pages)}
	for i := range pages {
		if pages[i].HasContent() {
			status.WithContent++
		}
	}

	if record == nil {
		return status, nil
	}

	params := record.Params()
	status.Locked = record.Locked
	status.LockID = record.ID
	status.KDF = &params
	status.CreatedAt = time.UnixMilli(record.CreatedAt)
	status.UpdatedAt = time.UnixMilli(record.UpdatedAt)

	if !record.Locked {
		return status, nil
	}

	if record.Payload == nil {
		status.PayloadDamaged = true
		return status, nil
	}
	bundle, err := payload.Decode(*record.Payload)
	if err != nil {
		status.PayloadDamaged = true
		return status, nil
	}
	status.EncryptedPages = len(bundle.Pages)
	for i := range pages {
		if pages[i].HasContent() && bundle.Find(pages[i].ID) != nil {
			status.NeedsRecovery = true
			break
		}
	}
	return status, nil
}

// Recover finishes an interrupted lock by sanitizing every page that is
// captured in the lock payload but still holds content. It is idempotent and
// returns the number of pages sanitized. Pages that are not in the payload
// are left alone.
func (c *Coordinator) Recover(ctx context.Context, diaryID string) (int, error) {
	if err := validateDiaryID(diaryID); err != nil {
		return 0, err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	record, err := c.loadRecord(ctx, diaryID)
	if err != nil {
		return 0, err
	}
	if record == nil || !record.Locked {
		return 0, ErrNotLocked
	}
	if record.Payload == nil {
		return 0, fmt.Errorf("%w: locked record has no payload", ErrPayloadCorrupted)
	}
	bundle, err := payload.Decode(*record.Payload)
	if err != nil {
		return 0, err
	}

	pages, err := c.store.LoadPages(ctx, diaryID)
	if err != nil {
		return 0, fmt.Errorf("failed to load pages: %w", err)
	}

	sanitized := 0
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return sanitized, err
		}
		if !pages[i].HasContent() {
			continue
		}
		if bundle.Find(pages[i].ID) == nil {
			c.log.Warn("page not captured by lock, leaving content", "diary_id", diaryID, "page_id", pages[i].ID)
			continue
		}

		pages[i].Sanitize()
		if err := c.store.SavePage(ctx, &pages[i]); err != nil {
			return sanitized, fmt.Errorf("failed to sanitize page %s: %w", pages[i].ID, err)
		}
		sanitized++
	}

	if sanitized > 0 {
		c.log.Info("diary recovered", "diary_id", diaryID, "pages", sanitized)
	}
	return sanitized, nil
}

// VerifyPassword checks password against a Locked diary's stored verifier
// without decrypting anything.
func (c *Coordinator) VerifyPassword(ctx context.Context, diaryID string, password []byte) error {
	if err := validateDiaryID(diaryID); err != nil {
		return err
	}

	record, err := c.store.LoadLock(ctx, diaryID)
	if err != nil {
		return fmt.Errorf("failed to load lock record: %w", err)
	}
	if record == nil || !record.Locked {
		return ErrNotLocked
	}
	return c.checkPassword(record, password)
}

// ChangePassword re-encrypts a Locked diary's payload under a new password
// and a fresh salt. Pages are not touched.
func (c *Coordinator) ChangePassword(ctx context.Context, diaryID string, currentPassword, newPassword []byte) error {
	if err := validateDiaryID(diaryID); err != nil {
		return err
	}
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	record, bundle, err := c.openLocked(ctx, diaryID, currentPassword)
	if err != nil {
		return err
	}

	entries, err := decryptBundle(ctx, record, bundle, currentPassword)
	if err != nil {
		return err
	}
	defer func() {
		for _, e := range entries {
			crypto.ClearBytes(e.plaintext)
		}
	}()

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	// Re-encrypting is the moment to move the diary onto current parameters
	params := c.params

	enc := crypto.NewEncryptor(newPassword, salt, params)
	defer enc.Destroy()

	next := &payload.Bundle{Pages: make([]payload.Entry, 0, len(entries))}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		blob, err := enc.Seal(e.plaintext)
		if err != nil {
			return fmt.Errorf("failed to re-encrypt page %s: %w", e.pageID, err)
		}
		next.Add(e.pageID, blob)
	}

	encoded, err := payload.Encode(next)
	if err != nil {
		return err
	}

	record.Salt = salt
	record.PasswordHash = crypto.HashPassword(newPassword, salt, params)
	record.KDF = params
	record.Payload = &encoded
	record.UpdatedAt = c.now()
	if err := c.store.SaveLock(ctx, record); err != nil {
		return fmt.Errorf("failed to save lock record: %w", err)
	}

	c.log.Info("diary password changed", "diary_id", diaryID, "lock_id", record.ID, "pages", len(entries))
	return nil
}

// Page states reported by Diff
const (
	PageSanitized   = "sanitized"   // content cleared, as expected while Locked
	PageUnsanitized = "unsanitized" // content equals the locked copy
	PageModified    = "modified"    // content differs from the locked copy
	PageMissing     = "missing"     // captured in the payload, gone from storage
	PageUncaptured  = "uncaptured"  // in storage, not in the payload
)

// PageDiff compares one page's locked copy with what storage holds now
type PageDiff struct {
	PageID string
	State  string
	Diff   string
}

// Diff decrypts a Locked diary's payload in memory and compares each page
// with its current content in storage. Nothing is written.
func (c *Coordinator) Diff(ctx context.Context, diaryID string, password []byte) ([]PageDiff, error) {
	if err := validateDiaryID(diaryID); err != nil {
		return nil, err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	record, bundle, err := c.openLocked(ctx, diaryID, password)
	if err != nil {
		return nil, err
	}
	locked, err := c.decryptPages(ctx, diaryID, record, bundle, password)
	if err != nil {
		return nil, err
	}

	current, err := c.store.LoadPages(ctx, diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load pages: %w", err)
	}
	byID := make(map[string]*storage.Page, len(current))
	for i := range current {
		byID[current[i].ID] = &current[i]
	}

	var diffs []PageDiff
	for i := range locked {
		lp := &locked[i]
		cp, ok := byID[lp.ID]
		delete(byID, lp.ID)

		switch {
		case !ok:
			diffs = append(diffs, PageDiff{PageID: lp.ID, State: PageMissing})
		case !cp.HasContent():
			diffs = append(diffs, PageDiff{PageID: lp.ID, State: PageSanitized})
		case SameContent(lp.Document, cp.Document) && SameContent(lp.Scene, cp.Scene):
			diffs = append(diffs, PageDiff{PageID: lp.ID, State: PageUnsanitized})
		default:
			diff := GenerateUnifiedDiff(lp.ID+"/document", lp.Document, cp.Document) +
				GenerateUnifiedDiff(lp.ID+"/scene", lp.Scene, cp.Scene)
			diffs = append(diffs, PageDiff{PageID: lp.ID, State: PageModified, Diff: diff})
		}
	}

	for i := range current {
		if _, ok := byID[current[i].ID]; ok {
			diffs = append(diffs, PageDiff{PageID: current[i].ID, State: PageUncaptured})
		}
	}
	return diffs, nil
}
