// Package payload encodes the bundle of per-page encrypted blobs stored inside
// a diary's lock record.
//
// Wire format:
//
//	{"pages":[{"pageId":"...","data":{"ciphertext":"<b64>","iv":"<b64>","salt":"<b64>"}}]}
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/illarion/diarylock/internal/crypto"
)

var ErrPayloadCorrupted = errors.New("lock payload is corrupted")

// Entry is the encrypted copy of one page
type Entry struct {
	PageID string               `json:"pageId"`
	Data   crypto.EncryptedBlob `json:"data"`
}

// Bundle holds one entry per page captured at lock time
type Bundle struct {
	Pages []Entry `json:"pages"`
}

// Add appends an entry for pageID
func (b *Bundle) Add(pageID string, blob *crypto.EncryptedBlob) {
	b.Pages = append(b.Pages, Entry{PageID: pageID, Data: *blob})
}

// Find returns the entry for pageID, or nil
func (b *Bundle) Find(pageID string) *Entry {
	for i := range b.Pages {
		if b.Pages[i].PageID == pageID {
			return &b.Pages[i]
		}
	}
	return nil
}

// PageIDs returns the ids of all pages in the bundle
func (b *Bundle) PageIDs() []string {
	ids := make([]string, len(b.Pages))
	for i, e := range b.Pages {
		ids[i] = e.PageID
	}
	return ids
}

// Equal reports whether both bundles hold the same entries, in any order
func (b *Bundle) Equal(other *Bundle) bool {
	if len(b.Pages) != len(other.Pages) {
		return false
	}
	for _, e := range b.Pages {
		o := other.Find(e.PageID)
		if o == nil {
			return false
		}
		if !bytes.Equal(e.Data.Ciphertext, o.Data.Ciphertext) ||
			!bytes.Equal(e.Data.IV, o.Data.IV) ||
			!bytes.Equal(e.Data.Salt, o.Data.Salt) {
			return false
		}
	}
	return true
}

// Encode serializes the bundle. Entries are written sorted by page id so the
// same bundle always encodes to the same string.
func Encode(b *Bundle) (string, error) {
	pages := make([]Entry, len(b.Pages))
	copy(pages, b.Pages)
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageID < pages[j].PageID })

	data, err := json.Marshal(Bundle{Pages: pages})
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return string(data), nil
}

type wireEntry struct {
	PageID string                `json:"pageId"`
	Data   *crypto.EncryptedBlob `json:"data"`
}

type wireBundle struct {
	Pages json.RawMessage `json:"pages"`
}

// Decode parses an encoded bundle. Any structural problem yields
// ErrPayloadCorrupted and a nil bundle.
func Decode(s string) (*Bundle, error) {
	var wb wireBundle
	if err := json.Unmarshal([]byte(s), &wb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}

	raw := bytes.TrimSpace(wb.Pages)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: pages must be a list", ErrPayloadCorrupted)
	}

	var entries []wireEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadCorrupted, err)
	}

	seen := make(map[string]struct{}, len(entries))
	pages := make([]Entry, 0, len(entries))
	for i, e := range entries {
		if e.PageID == "" {
			return nil, fmt.Errorf("%w: entry %d has no pageId", ErrPayloadCorrupted, i)
		}
		if e.Data == nil {
			return nil, fmt.Errorf("%w: entry %s has no data", ErrPayloadCorrupted, e.PageID)
		}
		if err := checkBlob(e.Data); err != nil {
			return nil, fmt.Errorf("%w: entry %s %v", ErrPayloadCorrupted, e.PageID, err)
		}
		if _, dup := seen[e.PageID]; dup {
			return nil, fmt.Errorf("%w: duplicate pageId %s", ErrPayloadCorrupted, e.PageID)
		}
		seen[e.PageID] = struct{}{}
		pages = append(pages, Entry{PageID: e.PageID, Data: *e.Data})
	}

	return &Bundle{Pages: pages}, nil
}

// checkBlob rejects blobs that cannot have come out of an Encryptor, so a
// damaged payload is not mistaken for a wrong password.
func checkBlob(b *crypto.EncryptedBlob) error {
	switch {
	case len(b.Salt) == 0:
		return errors.New("has no salt")
	case len(b.IV) != crypto.NonceSize:
		return fmt.Errorf("has a %d byte iv", len(b.IV))
	case len(b.Ciphertext) < crypto.TagSize:
		return fmt.Errorf("has a %d byte ciphertext", len(b.Ciphertext))
	}
	return nil
}
