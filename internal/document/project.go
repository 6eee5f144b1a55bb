// ABOUTME: Field projector that narrows user data to a set of dotted field paths
// ABOUTME: Used for fetch replies and per-subscriber change notifications

package document

import (
	"encoding/json"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Project returns the view of d restricted to fields. With no fields the full
// document is returned unchanged. Otherwise user data is rebuilt to hold only
// the requested paths, nested the same way as in the source; missing paths are
// left out. Metadata is always included unfiltered.
func Project(d *Document, fields []string) *Document {
	if len(fields) == 0 {
		return d
	}

	out := []byte(`{}`)
	for _, field := range fields {
		path, ok := fieldPath(field)
		if !ok {
			continue
		}
		value := gjson.GetBytes(d.UserData, path)
		if !value.Exists() {
			continue
		}
		updated, err := sjson.SetRawBytes(out, path, []byte(value.Raw))
		if err != nil {
			continue
		}
		out = updated
	}

	view := &Document{
		Metadata: d.Metadata,
		UserData: json.RawMessage(out),
	}
	return view
}
