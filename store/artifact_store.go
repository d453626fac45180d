// Package store defines the Artifact Store: a durable keyed table of
// artifact metadata with conditional insert, load, modify, and paged query.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/taskcluster/artifactcore/artifact"
)

// ConflictError is returned by Create when the (taskId, runId, name) key
// already exists. It carries the loser's view of the winning record so the
// caller can run idempotency reconciliation without a second round-trip
// when the backend can return it inline.
type ConflictError struct {
	Existing *artifact.Artifact
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("artifact store: conflict on %s/%d/%s", e.Existing.TaskID, e.Existing.RunID, e.Existing.Name)
}

// QueryOptions paginates a Query call.
type QueryOptions struct {
	// Continuation is an opaque cursor returned by a previous Query call.
	// Nil/empty means "start from the beginning".
	Continuation []byte
	// Limit caps the number of entries returned. Zero means the backend
	// default (1000).
	Limit int
	// Before, when non-zero, restricts the page to artifacts whose Expires
	// is at or before this time. Metadata destruction itself is an external
	// reaper's job, not this store's; this filter only gives such a reaper
	// a way to page through expired rows.
	Before time.Time
}

// QueryResult is the page returned by Query.
type QueryResult struct {
	Entries []*artifact.Artifact
	// Continuation is empty only when no entries remain. A non-empty one
	// may lead to an empty page: the DynamoDB backend returns one whenever
	// DynamoDB reports a LastEvaluatedKey.
	Continuation []byte
}

// ArtifactStore is the durable keyed table backing the artifact service.
// Implementations must linearize Create/Modify against concurrent callers
// racing on the same key; no in-process locking by callers is required or
// expected.
type ArtifactStore interface {
	// Create performs a conditional insert keyed by a.Key(). On a unique-key
	// conflict it returns a *ConflictError wrapping the existing record.
	Create(ctx context.Context, a *artifact.Artifact) error

	// Load returns the record for key, or a not-found error.
	Load(ctx context.Context, key artifact.Key) (*artifact.Artifact, error)

	// Modify performs an atomic read-modify-write of the record at key.
	// mutate is called with the current record and should update it in
	// place; returning an error aborts the write and is propagated as-is.
	Modify(ctx context.Context, key artifact.Key, mutate func(*artifact.Artifact) error) (*artifact.Artifact, error)

	// Query performs an ordered paged scan of all artifacts belonging to a
	// single run.
	Query(ctx context.Context, taskID string, runID int64, opts QueryOptions) (QueryResult, error)
}
