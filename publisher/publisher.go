// Package publisher implements publication of the artifact-created event
// that createArtifact emits after each successful create or idempotent
// re-create of an artifact's metadata.
package publisher

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/taskcluster/artifactcore/artifact"
)

// ArtifactCreatedEvent is the payload published after createArtifact has
// stored (or idempotently re-stored) an artifact's metadata; the artifact's
// bytes need not have been uploaded yet. Status, WorkerGroup, and
// WorkerID identify the run that produced the artifact; Artifact is the
// same projection a list response would render for it.
type ArtifactCreatedEvent struct {
	TaskID      string       `json:"taskId"`
	RunID       int64        `json:"runId"`
	Status      string       `json:"status"`
	WorkerGroup string       `json:"workerGroup"`
	WorkerID    string       `json:"workerId"`
	Artifact    artifact.JSON `json:"artifact"`
}

// Publisher is the narrow capability the Artifact Service depends on. The
// service treats a returned error as a failure of the createArtifact request
// that produced the event and reports it as an InternalError; the artifact
// metadata already stored is kept.
type Publisher interface {
	PublishArtifactCreated(event ArtifactCreatedEvent, routes []string) error
}

// NATSPublisher publishes artifact-created events to NATS, one subject per
// route plus a fixed fan-out subject.
type NATSPublisher struct {
	mu      sync.RWMutex
	conn    *nats.Conn
	logger  *slog.Logger
	subject string
}

// New wraps an already-connected *nats.Conn. subject is the fixed
// fan-out subject every event is also published to, independent of routes.
func New(conn *nats.Conn, subject string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, subject: subject, logger: logger}
}

// PublishArtifactCreated marshals event and publishes it to the fixed
// subject and to "<subject>.<route>" for each route in routes. The first
// publish error is returned; publication to remaining routes is still
// attempted, since this is at-least-once, best-effort delivery.
func (p *NATSPublisher) PublishArtifactCreated(event ArtifactCreatedEvent, routes []string) error {
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("nats publisher: connection not established")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("nats publisher: marshal event: %w", err)
	}

	var firstErr error
	publish := func(subject string) {
		if pubErr := conn.Publish(subject, data); pubErr != nil {
			p.logger.Error("failed to publish artifact-created event", "subject", subject, "error", pubErr)
			if firstErr == nil {
				firstErr = pubErr
			}
			return
		}
		p.logger.Debug("published artifact-created event", "subject", subject, "taskId", event.TaskID, "name", event.Artifact.Name)
	}

	publish(p.subject)
	for _, route := range routes {
		publish(p.subject + "." + route)
	}
	return firstErr
}

var _ Publisher = (*NATSPublisher)(nil)
