// ABOUTME: Document model for per-user JSON records with version and collaborator metadata
// ABOUTME: Defines the persisted record layout shared by the store, sessions and watchers

package document

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// emptyObject is the user data of a freshly created document.
var emptyObject = json.RawMessage(`{}`)

// LastUpdate records when a document was last modified and by whom.
type LastUpdate struct {
	At time.Time `json:"at"`
	By string    `json:"by"`
}

// Metadata is the store-managed part of a document. Clients never write it
// directly; it is only changed through Apply.
type Metadata struct {
	Username      string      `json:"username"`
	Version       int64       `json:"version"`
	Collaborators []string    `json:"collaborators"`
	CreatedAt     time.Time   `json:"createdAt"`
	LastUpdate    *LastUpdate `json:"lastUpdate,omitempty"`
}

// Document is the single mutable JSON record owned by a user.
// UserData is opaque to the store and may hold any JSON value.
type Document struct {
	Metadata Metadata        `json:"metadata"`
	UserData json.RawMessage `json:"userdata"`
}

// New creates version 0 of a document for username with empty user data.
func New(username string, createdAt time.Time) *Document {
	return &Document{
		Metadata: Metadata{
			Username:      username,
			Version:       0,
			Collaborators: []string{},
			CreatedAt:     createdAt,
		},
		UserData: slices.Clone(emptyObject),
	}
}

// Username returns the owner and storage key of the document.
func (d *Document) Username() string {
	return d.Metadata.Username
}

// Version returns the current optimistic concurrency version.
func (d *Document) Version() int64 {
	return d.Metadata.Version
}

// Clone returns a deep copy. Cached documents are shared between sessions, so
// anything that mutates a document works on a clone.
func (d *Document) Clone() *Document {
	c := &Document{
		Metadata: d.Metadata,
		UserData: slices.Clone(d.UserData),
	}
	c.Metadata.Collaborators = slices.Clone(d.Metadata.Collaborators)
	if c.Metadata.Collaborators == nil {
		c.Metadata.Collaborators = []string{}
	}
	if d.Metadata.LastUpdate != nil {
		lu := *d.Metadata.LastUpdate
		c.Metadata.LastUpdate = &lu
	}
	return c
}

// Marshal encodes the document in its persisted form.
func Marshal(d *Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// Unmarshal decodes a persisted document. Missing user data decodes as null.
func Unmarshal(data []byte) (*Document, error) {
	var d Document
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if d.UserData == nil {
		d.UserData = json.RawMessage(`null`)
	}
	if d.Metadata.Collaborators == nil {
		d.Metadata.Collaborators = []string{}
	}
	return &d, nil
}
