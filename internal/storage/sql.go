package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQL implements Storage on top of database/sql. The same queries serve
// SQLite and PostgreSQL; only the placeholder style differs.
type SQL struct {
	db       *sql.DB
	numbered bool // $1 placeholders instead of ?
}

var _ Storage = (*SQL)(nil)

// OpenSQLite opens the SQLite database at dsn and migrates it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(dsn string) (*SQL, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases
	// from splitting into one database per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(context.Background(), db, goose.DialectSQLite3, "sqlite"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQL{db: db}, nil
}

// OpenPostgres connects to the PostgreSQL database at dsn and migrates it
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrate(context.Background(), db, goose.DialectPostgres, "postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return &SQL{db: db, numbered: true}, nil
}

// Close closes the database
func (s *SQL) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders for drivers that want $n
func (s *SQL) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LoadPages returns every page of the diary, ordered by page id
func (s *SQL) LoadPages(ctx context.Context, diaryID string) ([]Page, error) {
	query := `SELECT id, diary_id, title, document, scene, created_at, updated_at
		FROM pages WHERE diary_id = ? ORDER BY id`
	rows, err := s.db.QueryContext(ctx, s.rebind(query), diaryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.DiaryID, &p.Title, &p.Document, &p.Scene, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if len(p.Document) == 0 {
			p.Document = nil
		}
		if len(p.Scene) == 0 {
			p.Scene = nil
		}
		pages = append(pages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pages, nil
}

// SavePage creates or replaces a page
func (s *SQL) SavePage(ctx context.Context, page *Page) error {
	if err := page.validate(); err != nil {
		return err
	}

	query := `INSERT INTO pages (diary_id, id, title, document, scene, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(diary_id, id) DO UPDATE SET
			title = excluded.title,
			document = excluded.document,
			scene = excluded.scene,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		page.DiaryID, page.ID, page.Title, page.Document, page.Scene, page.CreatedAt, page.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert page: %w", err)
	}
	return nil
}

// LoadLock returns the diary's lock record, or nil if there is none
func (s *SQL) LoadLock(ctx context.Context, diaryID string) (*LockRecord, error) {
	query := `SELECT id, diary_id, locked, salt, password_hash, kdf, payload, created_at, updated_at
		FROM locks WHERE diary_id = ?`

	var (
		r       LockRecord
		kdf     string
		payload sql.NullString
	)
	err := s.db.QueryRowContext(ctx, s.rebind(query), diaryID).Scan(
		&r.ID, &r.DiaryID, &r.Locked, &r.Salt, &r.PasswordHash, &kdf, &payload, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select lock record: %w", err)
	}

	if err := json.Unmarshal([]byte(kdf), &r.KDF); err != nil {
		return nil, fmt.Errorf("failed to decode kdf params: %w", err)
	}
	if payload.Valid {
		r.Payload = &payload.String
	}
	return &r, nil
}

// SaveLock creates or replaces the diary's lock record
func (s *SQL) SaveLock(ctx context.Context, record *LockRecord) error {
	if err := record.validate(); err != nil {
		return err
	}

	kdf, err := json.Marshal(record.KDF)
	if err != nil {
		return fmt.Errorf("failed to encode kdf params: %w", err)
	}

	var payload sql.NullString
	if record.Payload != nil {
		payload = sql.NullString{String: *record.Payload, Valid: true}
	}

	query := `INSERT INTO locks (id, diary_id, locked, salt, password_hash, kdf, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(diary_id) DO UPDATE SET
			id = excluded.id,
			locked = excluded.locked,
			salt = excluded.salt,
			password_hash = excluded.password_hash,
			kdf = excluded.kdf,
			payload = excluded.payload,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`
	_, err = s.db.ExecContext(ctx, s.rebind(query),
		record.ID, record.DiaryID, record.Locked, record.Salt, record.PasswordHash,
		string(kdf), payload, record.CreatedAt, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert lock record: %w", err)
	}
	return nil
}

// DeleteLock removes the lock record with the given id
func (s *SQL) DeleteLock(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM locks WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete lock record: %w", err)
	}
	return nil
}

// ListDiaries returns the ids of all diaries with pages or a lock record
func (s *SQL) ListDiaries(ctx context.Context) ([]string, error) {
	query := `SELECT diary_id FROM pages UNION SELECT diary_id FROM locks ORDER BY diary_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to select diaries: %w", err)
	}
	defer rows.Close()

	var diaries []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		diaries = append(diaries, id)
	}
	return diaries, rows.Err()
}
