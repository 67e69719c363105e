package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/illarion/diarylock/internal/crypto"
	"github.com/illarion/diarylock/internal/payload"
	"github.com/illarion/diarylock/internal/storage"
	"github.com/illarion/diarylock/internal/strength"
)

// Coordinator moves diaries between the Unlocked and Locked states.
// Every state transition on a diary holds that diary's mutex, so calls for
// the same diary run one at a time while different diaries proceed in
// parallel.
type Coordinator struct {
	store  storage.Storage
	params crypto.Params
	log    *slog.Logger
	locks  *keyedMutex
	now    func() int64
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithParams sets the key derivation parameters used for new locks.
// Existing locks keep the parameters they were created with.
func WithParams(p crypto.Params) Option {
	return func(c *Coordinator) {
		c.params = p
	}
}

// WithLogger sets the logger for state transitions
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a coordinator on top of store
func New(store storage.Storage, opts ...Option) (*Coordinator, error) {
	c := &Coordinator{
		store:  store,
		params: crypto.DefaultParams(),
		log:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})),
		locks:  newKeyedMutex(),
		now:    storage.NowMillis,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := c.params.Validate(); err != nil {
		return nil, fmt.Errorf("failed to initialize coordinator: %w", err)
	}
	return c, nil
}

func validateDiaryID(diaryID string) error {
	if strings.TrimSpace(diaryID) == "" {
		return &ValidationError{Reason: "diary id must not be empty"}
	}
	return nil
}

// ValidatePassword checks that password may be used to lock a diary
func ValidatePassword(password []byte) error {
	if len(password) == 0 {
		return &ValidationError{Reason: "password must not be empty"}
	}
	result := strength.Score(string(password))
	if !result.IsStrong {
		return &ValidationError{Reason: "password is too weak", Feedback: result.Feedback}
	}
	return nil
}

// LockDiary encrypts every page of the diary into its lock record and then
// clears the pages' content.
//
// The lock record with the complete payload is persisted before any page is
// sanitized. If sanitization is interrupted the diary is still Locked and
// Recover finishes the job.
func (c *Coordinator) LockDiary(ctx context.Context, diaryID string, password []byte) error {
	if err := validateDiaryID(diaryID); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	record, err := c.loadRecord(ctx, diaryID)
	if err != nil {
		return err
	}
	if record != nil && record.Locked {
		return ErrAlreadyLocked
	}

	pages, err := c.store.LoadPages(ctx, diaryID)
	if err != nil {
		return fmt.Errorf("failed to load pages: %w", err)
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	params := c.params

	enc := crypto.NewEncryptor(password, salt, params)
	defer enc.Destroy()

	// Phase 1: encrypt every page before touching storage
	bundle := &payload.Bundle{Pages: make([]payload.Entry, 0, len(pages))}
	for i := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := pages[i].CheckText(); err != nil {
			return &ValidationError{Reason: fmt.Sprintf("page %q cannot be locked: %v", pages[i].ID, err)}
		}
		data, err := json.Marshal(&pages[i])
		if err != nil {
			return fmt.Errorf("failed to serialize page %s: %w", pages[i].ID, err)
		}
		blob, err := enc.Seal(data)
		crypto.ClearBytes(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt page %s: %w", pages[i].ID, err)
		}
		bundle.Add(pages[i].ID, blob)
	}

	encoded, err := payload.Encode(bundle)
	if err != nil {
		return err
	}

	now := c.now()
	if record == nil {
		record = &storage.LockRecord{
			ID:        uuid.NewString(),
			DiaryID:   diaryID,
			CreatedAt: now,
		}
	}
	record.Locked = true
	record.Salt = salt
	record.PasswordHash = crypto.HashPassword(password, salt, params)
	record.KDF = params
	record.Payload = &encoded
	record.UpdatedAt = now

	// Phase 2: commit the record, then sanitize
	if err := c.store.SaveLock(ctx, record); err != nil {
		return fmt.Errorf("failed to save lock record: %w", err)
	}

	// Once the record is durable the sanitization runs to completion even if
	// the caller gives up.
	commit := context.WithoutCancel(ctx)
	for i := range pages {
		pages[i].Sanitize()
		if err := c.store.SavePage(commit, &pages[i]); err != nil {
			c.log.Warn("sanitization interrupted", "diary_id", diaryID, "page_id", pages[i].ID, "error", err)
			return fmt.Errorf("diary locked but page %s still holds content, run recover: %w", pages[i].ID, err)
		}
	}

	c.log.Info("diary locked", "diary_id", diaryID, "lock_id", record.ID, "pages", len(pages))
	return nil
}

// UnlockDiary restores every page from the lock record and marks the diary
// Unlocked. The whole bundle is decrypted and validated before the first page
// is written, so a failure leaves the diary Locked and untouched.
func (c *Coordinator) UnlockDiary(ctx context.Context, diaryID string, password []byte) error {
	if err := validateDiaryID(diaryID); err != nil {
		return err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	record, bundle, err := c.openLocked(ctx, diaryID, password)
	if err != nil {
		return err
	}

	pages, err := c.decryptPages(ctx, diaryID, record, bundle, password)
	if err != nil {
		return err
	}

	commit := context.WithoutCancel(ctx)
	for i := range pages {
		if err := c.store.SavePage(commit, &pages[i]); err != nil {
			return fmt.Errorf("failed to restore page %s: %w", pages[i].ID, err)
		}
	}

	record.Locked = false
	record.Payload = nil
	record.UpdatedAt = c.now()
	if err := c.store.SaveLock(commit, record); err != nil {
		return fmt.Errorf("failed to save lock record: %w", err)
	}

	c.log.Info("diary unlocked", "diary_id", diaryID, "lock_id", record.ID, "pages", len(pages))
	return nil
}

// ClearLock deletes the diary's lock record without a password check and
// without touching page content. It is meant for diary teardown.
func (c *Coordinator) ClearLock(ctx context.Context, diaryID string) error {
	if err := validateDiaryID(diaryID); err != nil {
		return err
	}

	unlock := c.locks.Lock(diaryID)
	defer unlock()

	record, err := c.store.LoadLock(ctx, diaryID)
	if err != nil {
		return fmt.Errorf("failed to load lock record: %w", err)
	}
	if record == nil {
		return nil
	}

	if err := c.store.DeleteLock(ctx, record.ID); err != nil {
		return fmt.Errorf("failed to delete lock record: %w", err)
	}

	c.log.Info("lock cleared", "diary_id", diaryID, "lock_id", record.ID, "was_locked", record.Locked)
	return nil
}

// loadRecord loads the diary's lock record. An unlocked record that still
// carries a payload is left over from an interrupted transition; the payload
// is dropped and the record persisted.
func (c *Coordinator) loadRecord(ctx context.Context, diaryID string) (*storage.LockRecord, error) {
	record, err := c.store.LoadLock(ctx, diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to load lock record: %w", err)
	}
	if record == nil || record.Locked || record.Payload == nil {
		return record, nil
	}

	c.log.Warn("clearing stale payload on unlocked diary", "diary_id", diaryID, "lock_id", record.ID)
	record.Payload = nil
	record.UpdatedAt = c.now()
	if err := c.store.SaveLock(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to normalize lock record: %w", err)
	}
	return record, nil
}

// openLocked loads a Locked diary's record, verifies password against the
// stored hash and decodes the payload.
func (c *Coordinator) openLocked(ctx context.Context, diaryID string, password []byte) (*storage.LockRecord, *payload.Bundle, error) {
	record, err := c.loadRecord(ctx, diaryID)
	if err != nil {
		return nil, nil, err
	}
	if record == nil || !record.Locked {
		return nil, nil, ErrNotLocked
	}

	if err := c.checkPassword(record, password); err != nil {
		return nil, nil, err
	}

	if record.Payload == nil {
		return nil, nil, fmt.Errorf("%w: locked record has no payload", ErrPayloadCorrupted)
	}
	bundle, err := payload.Decode(*record.Payload)
	if err != nil {
		return nil, nil, err
	}
	return record, bundle, nil
}

// checkPassword compares the password's verifier with the stored one
func (c *Coordinator) checkPassword(record *storage.LockRecord, password []byte) error {
	params := record.Params()
	if err := params.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}

	if !crypto.VerifyPassword(password, record.Salt, params, record.PasswordHash) {
		return ErrWrongPassword
	}
	return nil
}

type decryptedEntry struct {
	pageID    string
	plaintext []byte
}

// decryptBundle opens every entry of the bundle under the record's key. An
// entry sealed under another salt is damage, not a wrong password. Any
// authentication failure aborts with ErrWrongPassword and nothing is returned.
func decryptBundle(ctx context.Context, record *storage.LockRecord, bundle *payload.Bundle, password []byte) ([]decryptedEntry, error) {
	for i := range bundle.Pages {
		if !bytes.Equal(bundle.Pages[i].Data.Salt, record.Salt) {
			return nil, fmt.Errorf("%w: entry %s has a foreign salt", ErrPayloadCorrupted, bundle.Pages[i].PageID)
		}
	}

	enc := crypto.NewEncryptor(password, record.Salt, record.Params())
	defer enc.Destroy()

	out := make([]decryptedEntry, 0, len(bundle.Pages))
	fail := func(err error) ([]decryptedEntry, error) {
		for _, d := range out {
			crypto.ClearBytes(d.plaintext)
		}
		return nil, err
	}

	for i := range bundle.Pages {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}

		entry := &bundle.Pages[i]
		plaintext, err := enc.Open(&entry.Data)
		if err != nil {
			if errors.Is(err, crypto.ErrDecryptionFailed) {
				return fail(ErrWrongPassword)
			}
			return fail(err)
		}
		out = append(out, decryptedEntry{pageID: entry.PageID, plaintext: plaintext})
	}
	return out, nil
}

// decryptPages decrypts the bundle and parses every entry back into the page
// it was captured from.
func (c *Coordinator) decryptPages(ctx context.Context, diaryID string, record *storage.LockRecord, bundle *payload.Bundle, password []byte) ([]storage.Page, error) {
	entries, err := decryptBundle(ctx, record, bundle, password)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, e := range entries {
			crypto.ClearBytes(e.plaintext)
		}
	}()

	pages := make([]storage.Page, 0, len(entries))
	for _, e := range entries {
		var page storage.Page
		if err := json.Unmarshal(e.plaintext, &page); err != nil {
			return nil, fmt.Errorf("%w: page %s does not decode: %v", ErrPayloadCorrupted, e.pageID, err)
		}
		if page.ID != e.pageID || page.DiaryID != diaryID {
			return nil, fmt.Errorf("%w: entry %s holds page %s of diary %s", ErrPayloadCorrupted, e.pageID, page.ID, page.DiaryID)
		}
		pages = append(pages, page)
	}
	return pages, nil
}
