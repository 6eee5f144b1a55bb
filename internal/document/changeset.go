// ABOUTME: Parses client change sets into base version, user data and collaborator list
// ABOUTME: Uses gjson so arbitrary client JSON is inspected without a fixed schema

package document

import (
	"encoding/json"
	"math"

	"github.com/tidwall/gjson"
)

// ChangeSet is a parsed update request. It mirrors the document layout:
// metadata.version is the base version, metadata.collaborators an optional
// replacement list and userdata the new user data.
type ChangeSet struct {
	// BaseVersion is nil when metadata.version is absent or not an integer.
	BaseVersion *int64

	// UserData is nil when the change set has no userdata key. An explicit
	// JSON null is kept as the literal null.
	UserData json.RawMessage

	// Collaborators is only meaningful when ReplaceCollaborators is set.
	Collaborators        []string
	ReplaceCollaborators bool
}

// ParseChangeSet extracts a ChangeSet from raw client JSON. Anything that is
// valid JSON parses; shape problems surface later as a version conflict or as
// fields being left untouched. A change set without a metadata block leaves
// collaborators alone.
func ParseChangeSet(raw json.RawMessage) (*ChangeSet, error) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return nil, ErrSerialization
	}

	cs := &ChangeSet{}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return cs, nil
	}

	if v := root.Get("metadata.version"); v.Type == gjson.Number {
		if v.Num == math.Trunc(v.Num) && !math.IsInf(v.Num, 0) {
			n := v.Int()
			cs.BaseVersion = &n
		}
	}

	if ud := root.Get("userdata"); ud.Exists() {
		cs.UserData = json.RawMessage(ud.Raw)
	}

	if collab := root.Get("metadata.collaborators"); collab.IsArray() {
		cs.ReplaceCollaborators = true
		cs.Collaborators = []string{}
		collab.ForEach(func(_, item gjson.Result) bool {
			if item.Type == gjson.String {
				cs.Collaborators = append(cs.Collaborators, item.String())
			}
			return true
		})
	}

	return cs, nil
}
