// ABOUTME: Blob store interface and storage-key sanitization shared by all backends
// ABOUTME: Keys are escaped injectively so no two usernames share a storage location, even ignoring case

package blob

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no value is stored under a key.
var ErrNotFound = errors.New("blob not found")

// Store is durable storage for document blobs.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Close releases any resources held by the store.
	Close() error
}

const hexDigits = "0123456789ABCDEF"

// SafeName turns an arbitrary key into a single path segment. Bytes outside
// [a-z0-9_-] become %XX, so the mapping is injective and the result never
// contains separators, dots or reserved characters. Uppercase letters are
// escaped too, which keeps names distinct on case-insensitive filesystems.
func SafeName(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	if b.Len() == 0 {
		return "%"
	}
	return b.String()
}

func isSafe(c byte) bool {
	return c >= 'a' && c <= 'z' ||
		c >= '0' && c <= '9' ||
		c == '-' || c == '_'
}
