// ABOUTME: Update engine that applies a change set to a document and bumps its version
// ABOUTME: Supports wholesale replacement or shallow top-level merge of user data

package document

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"github.com/tidwall/gjson"
)

// Apply returns the successor of d after applying cs on behalf of actor.
// d itself is not modified. Apply never rejects on content; access, version
// and size checks belong to its callers.
func Apply(actor string, d *Document, cs *ChangeSet, merge bool, now time.Time) *Document {
	next := d.Clone()

	if cs.UserData != nil {
		if merge {
			next.UserData = mergeShallow(next.UserData, cs.UserData)
		} else {
			next.UserData = compact(cs.UserData)
		}
	}

	if cs.ReplaceCollaborators {
		next.Metadata.Collaborators = uniqueCollaborators(next.Metadata.Username, cs.Collaborators)
	}

	next.Metadata.Version++
	next.Metadata.LastUpdate = &LastUpdate{At: now, By: actor}
	return next
}

// mergeShallow copies the top-level keys of incoming over existing. Keys only
// present in existing survive in their original order; nested objects are
// replaced, not merged. Any key is accepted, including the empty string. When
// incoming is not an object there are no keys to merge and it replaces
// existing outright. A non-object existing value is treated as empty.
func mergeShallow(existing, incoming json.RawMessage) json.RawMessage {
	in := gjson.ParseBytes(incoming)
	if !in.IsObject() {
		return compact(incoming)
	}

	var keys []string
	members := make(map[string]member)
	collect := func(key, value gjson.Result) bool {
		name := key.String()
		if _, seen := members[name]; !seen {
			keys = append(keys, name)
		}
		members[name] = member{key: key.Raw, value: value.Raw}
		return true
	}
	if cur := gjson.ParseBytes(existing); cur.IsObject() {
		cur.ForEach(collect)
	}
	in.ForEach(collect)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		m := members[name]
		buf.WriteString(m.key)
		buf.WriteByte(':')
		buf.WriteString(m.value)
	}
	buf.WriteByte('}')
	return compact(buf.Bytes())
}

// member is one raw key/value pair of a JSON object.
type member struct {
	key   string
	value string
}

// uniqueCollaborators drops duplicates, empty names and the owner while
// keeping the first-seen order.
func uniqueCollaborators(owner string, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if name == "" || name == owner || slices.Contains(out, name) {
			continue
		}
		out = append(out, name)
	}
	return out
}

func compact(raw json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return slices.Clone(raw)
	}
	return buf.Bytes()
}
