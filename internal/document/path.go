package document

import "strings"

// pathSpecial lists characters that have meaning in gjson/sjson paths.
const pathSpecial = `\.*?|#@!:~`

// escapeKey escapes a single object key so it can be used as one path segment.
func escapeKey(key string) string {
	if !strings.ContainsAny(key, pathSpecial) {
		return key
	}
	var b strings.Builder
	for _, r := range key {
		if strings.ContainsRune(pathSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fieldPath converts a dotted field path into an escaped gjson/sjson path.
// Empty segments make the path unusable and yield ok=false.
func fieldPath(field string) (string, bool) {
	if field == "" {
		return "", false
	}
	segments := strings.Split(field, ".")
	for i, seg := range segments {
		if seg == "" {
			return "", false
		}
		segments[i] = escapeKey(seg)
	}
	return strings.Join(segments, "."), true
}
