// Package watch tracks standing subscriptions to documents and fans out
// change notifications to them.
//
// Entries are indexed by target username. A notification is delivered to the
// snapshot of entries present when it starts, outside the registry lock, and
// each subscriber sees only the projection of the fields it asked for.
package watch
