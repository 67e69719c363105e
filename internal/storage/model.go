package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/illarion/diarylock/internal/crypto"
)

var ErrInvalidRecord = errors.New("invalid record")

// Page is a diary page. Document and Scene are opaque content owned by the
// editor; everything else is metadata that survives sanitization.
type Page struct {
	ID        string `json:"id"`
	DiaryID   string `json:"diaryId"`
	Title     string `json:"title"`
	Document  []byte `json:"document,omitempty"`
	Scene     []byte `json:"scene,omitempty"`
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
}

// HasContent reports whether any content field is non-empty
func (p *Page) HasContent() bool {
	return len(p.Document) > 0 || len(p.Scene) > 0
}

// Sanitize clears the content fields
func (p *Page) Sanitize() {
	p.Document = nil
	p.Scene = nil
}

func (p *Page) validate() error {
	if p.ID == "" || p.DiaryID == "" {
		return fmt.Errorf("%w: page needs id and diary id", ErrInvalidRecord)
	}
	return p.CheckText()
}

// CheckText rejects text fields that are not valid UTF-8. Locking serializes
// pages as JSON, which would silently rewrite such bytes.
func (p *Page) CheckText() error {
	for _, f := range [...]struct{ name, value string }{
		{"id", p.ID}, {"diary id", p.DiaryID}, {"title", p.Title},
	} {
		if !utf8.ValidString(f.value) {
			return fmt.Errorf("%w: page %s is not valid UTF-8", ErrInvalidRecord, f.name)
		}
	}
	return nil
}

// LockRecord is the persisted lock state of one diary
type LockRecord struct {
	ID           string        `json:"id"`
	DiaryID      string        `json:"diaryId"`
	Locked       bool          `json:"locked"`
	Salt         []byte        `json:"salt"`
	PasswordHash []byte        `json:"passwordHash"`
	KDF          crypto.Params `json:"kdf"`
	Payload      *string       `json:"payload"`
	CreatedAt    int64         `json:"createdAt"`
	UpdatedAt    int64         `json:"updatedAt"`
}

// Params returns the record's key derivation parameters. Records written
// without them predate versioning and used the version 1 defaults.
func (r *LockRecord) Params() crypto.Params {
	if r.KDF.IsZero() {
		return crypto.DefaultParams()
	}
	return r.KDF
}

func (r *LockRecord) validate() error {
	if r.ID == "" || r.DiaryID == "" {
		return fmt.Errorf("%w: lock record needs id and diary id", ErrInvalidRecord)
	}
	return nil
}

// Storage is the persistence collaborator of the lock coordinator
type Storage interface {
	// LoadPages returns every page of the diary, ordered by page id
	LoadPages(ctx context.Context, diaryID string) ([]Page, error)
	// SavePage creates or replaces a page
	SavePage(ctx context.Context, page *Page) error
	// LoadLock returns the diary's lock record, or nil if there is none
	LoadLock(ctx context.Context, diaryID string) (*LockRecord, error)
	// SaveLock creates or replaces the diary's lock record
	SaveLock(ctx context.Context, record *LockRecord) error
	// DeleteLock removes the lock record with the given id. Unknown ids are
	// not an error.
	DeleteLock(ctx context.Context, id string) error
	// ListDiaries returns the ids of all diaries with pages or a lock record
	ListDiaries(ctx context.Context) ([]string, error)
	Close() error
}

// NowMillis returns the current time as Unix milliseconds, the timestamp
// unit of persisted records.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
