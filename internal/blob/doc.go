// Package blob provides durable key/value storage for serialized documents.
//
// # Overview
//
// A Store maps a logical key (the username) to an opaque byte slice. Three
// backends are available:
//
//   - FileStore: one file per key inside a directory (the default)
//   - SQLiteStore: one row per key in a single SQLite database
//   - S3Store: one object per key in an S3-compatible bucket
//
// # Keys
//
// File and S3 backends derive their object name with SafeName, which escapes
// every byte outside [a-z0-9_-] so distinct keys never share a location and
// no key can traverse out of the storage directory. Uppercase letters are
// escaped as well, so "Alice" and "alice" stay apart on case-insensitive
// filesystems such as the macOS and Windows defaults.
//
// # Atomicity
//
// Put either stores the complete value or leaves the previous value intact.
// FileStore writes to a temporary file and renames it into place; SQLite and
// S3 writes are atomic per key.
package blob
