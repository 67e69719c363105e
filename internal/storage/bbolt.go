package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const SchemaVersion = 1

// Bucket names
var (
	ConfigBucket  = []byte("config")  // schema version, creation time
	PagesBucket   = []byte("pages")   // nested bucket per diary
	LocksBucket   = []byte("locks")   // diary id -> lock record
	LockIDsBucket = []byte("lockids") // lock record id -> diary id
)

// Config keys
var (
	ConfigVersion = []byte("version")
	ConfigCreated = []byte("created")
)

// Bolt provides BBolt-based storage for diaries
type Bolt struct {
	db *bolt.DB
}

var _ Storage = (*Bolt)(nil)

// OpenBolt opens or creates a diarylock database and makes sure the bucket
// structure exists.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Bolt{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Bolt) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Bolt) Path() string {
	return s.db.Path()
}

func (s *Bolt) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, PagesBucket, LocksBucket, LockIDsBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if v := config.Get(ConfigVersion); v != nil {
			version, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("invalid schema version %q: %w", v, err)
			}
			if version > SchemaVersion {
				return fmt.Errorf("database schema version %d is newer than supported version %d", version, SchemaVersion)
			}
			return nil
		}

		if err := config.Put(ConfigVersion, []byte(strconv.Itoa(SchemaVersion))); err != nil {
			return err
		}
		created, _ := time.Now().MarshalBinary()
		return config.Put(ConfigCreated, created)
	})
}

// Created returns the database creation time
func (s *Bolt) Created() (time.Time, error) {
	var created time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(ConfigBucket).Get(ConfigCreated)
		if data == nil {
			return fmt.Errorf("created time not found")
		}
		return created.UnmarshalBinary(data)
	})
	return created, err
}

// LoadPages returns every page of the diary, ordered by page id
func (s *Bolt) LoadPages(ctx context.Context, diaryID string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var pages []Page
	err := s.db.View(func(tx *bolt.Tx) error {
		diary := tx.Bucket(PagesBucket).Bucket([]byte(diaryID))
		if diary == nil {
			return nil
		}
		// bbolt iterates keys in byte order, so pages come out sorted by id
		return diary.ForEach(func(k, v []byte) error {
			var page Page
			if err := json.Unmarshal(v, &page); err != nil {
				return fmt.Errorf("failed to decode page %s: %w", k, err)
			}
			pages = append(pages, page)
			return nil
		})
	})
	return pages, err
}

// SavePage creates or replaces a page
func (s *Bolt) SavePage(ctx context.Context, page *Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := page.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		diary, err := tx.Bucket(PagesBucket).CreateBucketIfNotExists([]byte(page.DiaryID))
		if err != nil {
			return fmt.Errorf("failed to create diary bucket: %w", err)
		}
		return diary.Put([]byte(page.ID), data)
	})
}

// LoadLock returns the diary's lock record, or nil if there is none
func (s *Bolt) LoadLock(ctx context.Context, diaryID string) (*LockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var record *LockRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(LocksBucket).Get([]byte(diaryID))
		if data == nil {
			return nil
		}
		record = &LockRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("failed to decode lock record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// SaveLock creates or replaces the diary's lock record
func (s *Bolt) SaveLock(ctx context.Context, record *LockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := record.validate(); err != nil {
		return err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode lock record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		locks := tx.Bucket(LocksBucket)
		ids := tx.Bucket(LockIDsBucket)

		// Drop the index entry of a previous record with a different id
		if prev := locks.Get([]byte(record.DiaryID)); prev != nil {
			var old LockRecord
			if err := json.Unmarshal(prev, &old); err == nil && old.ID != record.ID {
				if err := ids.Delete([]byte(old.ID)); err != nil {
					return err
				}
			}
		}

		if err := locks.Put([]byte(record.DiaryID), data); err != nil {
			return err
		}
		return ids.Put([]byte(record.ID), []byte(record.DiaryID))
	})
}

// DeleteLock removes the lock record with the given id
func (s *Bolt) DeleteLock(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		ids := tx.Bucket(LockIDsBucket)
		diaryID := ids.Get([]byte(id))
		if diaryID == nil {
			return nil
		}
		// Copy since the slice is only valid during the transaction and we
		// are about to mutate the bucket it points into
		diaryID = append([]byte(nil), diaryID...)

		if err := tx.Bucket(LocksBucket).Delete(diaryID); err != nil {
			return err
		}
		return ids.Delete([]byte(id))
	})
}

// ListDiaries returns the ids of all diaries with pages or a lock record
func (s *Bolt) ListDiaries(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	err := s.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(PagesBucket).ForEachBucket(func(k []byte) error {
			seen[string(k)] = struct{}{}
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(LocksBucket).ForEach(func(k, _ []byte) error {
			seen[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	diaries := make([]string, 0, len(seen))
	for id := range seen {
		diaries = append(diaries, id)
	}
	sort.Strings(diaries)
	return diaries, nil
}

// Compact creates a compacted copy of the database, removing unused space.
// Locking rewrites every page, so the file grows over lock/unlock cycles.
func (s *Bolt) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	return nil
}
