// Package storage persists diary pages and lock records.
//
// Storage is the interface the lock coordinator consumes. It is implemented
// by:
//   - Bolt: a single BBolt file (the default)
//   - SQL: database/sql over modernc.org/sqlite or pgx, for diaries whose
//     pages already live in a relational store. Schemas are goose migrations
//     embedded under migrations/.
//
// BBolt layout uses four buckets:
//   - config: schema version and creation time
//   - pages: one nested bucket per diary, page id -> JSON page record
//   - locks: diary id -> JSON lock record
//   - lockids: lock record id -> diary id, so DeleteLock can work by id
//
// Both backends store page content and lock records verbatim; encryption is
// entirely the caller's concern.
package storage
