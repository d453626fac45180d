package publisher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcluster/artifactcore/artifact"
)

func TestNATSPublisher_NoConnection(t *testing.T) {
	p := New(nil, "artifacts.created", nil)
	err := p.PublishArtifactCreated(ArtifactCreatedEvent{
		TaskID: "T1", RunID: 0, Status: "running", WorkerGroup: "workers", WorkerID: "w1",
		Artifact: artifact.JSON{StorageType: "s3", Name: "public/log.txt", Expires: time.Now()},
	}, []string{"index.foo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection not established")
}
