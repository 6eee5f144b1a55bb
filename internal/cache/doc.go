// Package cache provides a bounded, time-expiring LRU cache used to keep hot
// documents in memory in front of the blob store.
package cache
