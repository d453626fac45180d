package store

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"

	"github.com/taskcluster/artifactcore/artifact"
)

// MemoryArtifactStore is a thread-safe in-memory ArtifactStore: a single
// mutex guarding a map, with defensive copies on the way in and out so
// callers can't mutate store state through a returned pointer. Used for
// tests and single-process deployments.
type MemoryArtifactStore struct {
	mu      sync.Mutex
	records map[artifact.Key]*artifact.Artifact
}

// NewMemoryArtifactStore creates an empty MemoryArtifactStore.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{records: make(map[artifact.Key]*artifact.Artifact)}
}

func clone(a *artifact.Artifact) *artifact.Artifact {
	cp := *a
	return &cp
}

func (s *MemoryArtifactStore) Create(_ context.Context, a *artifact.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := a.Key()
	if existing, ok := s.records[key]; ok {
		return &ConflictError{Existing: clone(existing)}
	}
	s.records[key] = clone(a)
	return nil
}

func (s *MemoryArtifactStore) Load(_ context.Context, key artifact.Key) (*artifact.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryArtifactStore) Modify(_ context.Context, key artifact.Key, mutate func(*artifact.Artifact) error) (*artifact.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	working := clone(rec)
	if err := mutate(working); err != nil {
		return nil, err
	}
	s.records[key] = working
	return clone(working), nil
}

// runKey identifies the partial key a Query scans over.
type runKey struct {
	taskID string
	runID  int64
}

func (s *MemoryArtifactStore) Query(_ context.Context, taskID string, runID int64, opts QueryOptions) (QueryResult, error) {
	s.mu.Lock()
	var matched []*artifact.Artifact
	for k, rec := range s.records {
		if k.TaskID != taskID || k.RunID != runID {
			continue
		}
		if !opts.Before.IsZero() && rec.Expires.After(opts.Before) {
			continue
		}
		matched = append(matched, clone(rec))
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].Name < matched[j].Name })

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	start := 0
	if len(opts.Continuation) > 0 {
		after, err := decodeCursor(opts.Continuation)
		if err != nil {
			return QueryResult{}, err
		}
		start = sort.Search(len(matched), func(i int) bool { return matched[i].Name > after })
	}

	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	page := matched[start:end]

	result := QueryResult{Entries: page}
	if end < len(matched) {
		result.Continuation = encodeCursor(page[len(page)-1].Name)
	}
	return result, nil
}

func encodeCursor(lastName string) []byte {
	return []byte(base64.RawURLEncoding.EncodeToString([]byte(lastName)))
}

func decodeCursor(token []byte) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(string(token))
	if err != nil {
		return "", fmt.Errorf("invalid continuation token: %w", err)
	}
	return string(raw), nil
}

var _ ArtifactStore = (*MemoryArtifactStore)(nil)
