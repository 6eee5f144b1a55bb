// ABOUTME: Access and version guards evaluated before any document read or write
// ABOUTME: Owner or collaborator standing grants access; versions must match exactly

package document

import (
	"fmt"
	"slices"
)

// CheckAccess allows the owner and listed collaborators. An empty identity
// belongs to an unauthenticated session and never matches.
func CheckAccess(identity string, d *Document) error {
	if identity == "" {
		return ErrAccessDenied
	}
	if identity == d.Metadata.Username {
		return nil
	}
	if slices.Contains(d.Metadata.Collaborators, identity) {
		return nil
	}
	return ErrAccessDenied
}

// CheckVersion allows a change only when the caller saw the current version.
// A nil supplied version (absent or not an integer) never matches.
func CheckVersion(d *Document, supplied *int64) error {
	if supplied == nil {
		return fmt.Errorf("%w: expected %d, got none", ErrVersionConflict, d.Metadata.Version)
	}
	if *supplied != d.Metadata.Version {
		return fmt.Errorf("%w: expected %d, got %d", ErrVersionConflict, d.Metadata.Version, *supplied)
	}
	return nil
}
