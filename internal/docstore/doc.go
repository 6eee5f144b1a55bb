// Package docstore is the document store: durable blob persistence fronted by a
// bounded, time-expiring cache, with per-username mutual exclusion.
//
// # Consistency
//
// Every change to a username's document runs under that username's lock, so
// read, check, apply, persist and notify form one critical section. Different
// usernames never contend. Cached documents are immutable snapshots; callers
// receive clones and mutate those.
//
// # Write ordering
//
// Write checks the serialized size first, then persists, then updates the
// cache. A rejected or failed write leaves both the cache and storage as they
// were.
package docstore
