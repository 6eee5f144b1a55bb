package document

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProject_NoFieldsReturnsFullDocument(t *testing.T) {
	doc := New("alice", created)
	doc.UserData = json.RawMessage(`{"a":{"b":1,"c":2}}`)

	assert.Same(t, doc, Project(doc, nil))
	assert.Same(t, doc, Project(doc, []string{}))
}

func TestProject(t *testing.T) {
	doc := New("alice", created)
	doc.Metadata.Version = 7
	doc.Metadata.Collaborators = []string{"bob"}
	doc.UserData = json.RawMessage(`{"a":{"b":1,"c":2},"y":{"deep":[1,2]},"z":3,"dot.key":4}`)

	tests := []struct {
		name   string
		fields []string
		want   string
	}{
		{"nested path", []string{"a.b"}, `{"a":{"b":1}}`},
		{"subtree", []string{"y"}, `{"y":{"deep":[1,2]}}`},
		{"several", []string{"a.c", "z"}, `{"a":{"c":2},"z":3}`},
		{"sibling paths share parent", []string{"a.b", "a.c"}, `{"a":{"b":1,"c":2}}`},
		{"missing path", []string{"nope.deeper"}, `{}`},
		{"missing intermediate", []string{"z.inner"}, `{}`},
		{"empty segment ignored", []string{"a..b", ""}, `{}`},
		{"wildcard is literal", []string{"a.*"}, `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Project(doc, tt.fields)
			assert.JSONEq(t, tt.want, string(view.UserData))
			assert.Equal(t, doc.Metadata, view.Metadata)
		})
	}
}

func TestProject_NonObjectUserData(t *testing.T) {
	doc := New("alice", created)
	doc.UserData = json.RawMessage(`42`)

	view := Project(doc, []string{"a"})
	assert.JSONEq(t, `{}`, string(view.UserData))
}

func TestProject_DoesNotModifySource(t *testing.T) {
	doc := New("alice", created)
	doc.UserData = json.RawMessage(`{"a":{"b":1,"c":2}}`)

	_ = Project(doc, []string{"a.b"})
	assert.JSONEq(t, `{"a":{"b":1,"c":2}}`, string(doc.UserData))
}
