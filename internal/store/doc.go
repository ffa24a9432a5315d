// Package store is the SQLite persistence adapter for crudkit entities.
//
// Entity tables are generated from compiled entity specs by Migrate. Every
// table has:
//   - id: INTEGER PRIMARY KEY AUTOINCREMENT (never reused after delete)
//   - one column per declared field
//   - created_at / updated_at: fixed-width UTC timestamps assigned by the store clock
//
// Many-to-many links get an association table with cascading foreign keys
// on both sides.
//
// # Critical Patterns
//
// Deterministic Query Results
//   - Every SELECT is built through querysql, which appends an id tiebreaker
//   - Pagination over an unchanged table never skips or repeats rows
//
// Storage Encodings
//   - Values are encoded by package coerce before they reach SQL
//   - Decimals are TEXT and compare with CAST(... AS REAL) in filters
//   - Rows come back storage-native (Row); callers decode them with coerce.Row
//
// Errors
//   - Missing rows: *NotFoundError (errors.Is(err, ErrNotFound))
//   - Integrity failures: *ConstraintError, from pre-checks or driver codes
//   - Anything else: *StorageError, returned as-is and never retried
//
// Paired Writes
//   - WithTx runs a function in one transaction; any error rolls back
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Two drivers are supported: github.com/mattn/go-sqlite3 ("sqlite3", cgo)
// and modernc.org/sqlite ("sqlite", pure Go).
package store
