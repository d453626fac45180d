// Package artifact defines the Artifact entity: the keyed metadata record
// that describes where a task run's output bytes live.
package artifact

import (
	"strings"
	"time"
)

// StorageType discriminates how an artifact's bytes are stored and served.
type StorageType string

const (
	S3        StorageType = "s3"
	Azure     StorageType = "azure"
	Reference StorageType = "reference"
	Error     StorageType = "error"
)

// PublicPrefix marks an artifact name as world-readable.
const PublicPrefix = "public/"

// IsPublicName reports whether name begins with the public prefix.
func IsPublicName(name string) bool {
	return strings.HasPrefix(name, PublicPrefix)
}

// Key identifies an artifact uniquely within the store.
type Key struct {
	TaskID string
	RunID  int64
	Name   string
}

// Details is implemented by the four storage-type-specific detail records.
// It is a closed set; adding a fifth variant requires a new constructor and
// a new case in every switch that dispatches on StorageType.
type Details interface {
	storageType() StorageType
}

// S3Details locates bytes in an S3-compatible bucket.
type S3Details struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
}

func (S3Details) storageType() StorageType { return S3 }

// AzureDetails locates bytes in a blob container.
type AzureDetails struct {
	Container string `json:"container"`
	Path      string `json:"path"`
}

func (AzureDetails) storageType() StorageType { return Azure }

// ReferenceDetails points at an arbitrary external URL; no bytes are held
// by this core at all.
type ReferenceDetails struct {
	URL string `json:"url"`
}

func (ReferenceDetails) storageType() StorageType { return Reference }

// ErrorDetails records why an artifact could not be produced. No bytes and
// no redirect; get requests are answered with this information directly.
type ErrorDetails struct {
	Message string `json:"message"`
	Reason  string `json:"reason"`
}

func (ErrorDetails) storageType() StorageType { return Error }

// Artifact is the durable metadata record keyed by (TaskID, RunID, Name).
type Artifact struct {
	TaskID      string
	RunID       int64
	Name        string
	StorageType StorageType
	ContentType string
	Expires     time.Time
	Details     Details
}

// Key returns the composite identity of a.
func (a *Artifact) Key() Key {
	return Key{TaskID: a.TaskID, RunID: a.RunID, Name: a.Name}
}

// IsPublic reports whether a's name marks it world-readable.
func (a *Artifact) IsPublic() bool {
	return IsPublicName(a.Name)
}

// JSON is the wire representation used in list responses and in the
// artifactCreated event payload.
type JSON struct {
	StorageType StorageType `json:"storageType"`
	Name        string      `json:"name"`
	Expires     time.Time   `json:"expires"`
	ContentType string      `json:"contentType,omitempty"`
	URL         string      `json:"url,omitempty"`
}

// ToJSON renders a's public wire form.
func (a *Artifact) ToJSON() JSON {
	j := JSON{
		StorageType: a.StorageType,
		Name:        a.Name,
		Expires:     a.Expires,
		ContentType: a.ContentType,
	}
	if ref, ok := a.Details.(ReferenceDetails); ok {
		j.URL = ref.URL
	}
	return j
}
