package document

import "errors"

// Errors returned by document operations. Their text is what clients see in
// an issue reply, so it stays short and free of internal detail.
var (
	ErrNotFound        = errors.New("not found")
	ErrAccessDenied    = errors.New("unauthorized")
	ErrVersionConflict = errors.New("version mismatch")
	ErrPayloadTooLarge = errors.New("data too large")
	ErrSerialization   = errors.New("invalid payload")
	ErrPersistence     = errors.New("storage failure")
	ErrExists          = errors.New("already exists")
)

// IssueMessage maps an error to the message sent back to a client.
// Unknown errors collapse to the persistence message so storage paths and
// driver errors never leak over the wire.
func IssueMessage(err error) string {
	for _, known := range []error{
		ErrNotFound,
		ErrAccessDenied,
		ErrVersionConflict,
		ErrPayloadTooLarge,
		ErrSerialization,
		ErrExists,
	} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrPersistence.Error()
}
