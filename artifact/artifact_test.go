package artifact

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicName(t *testing.T) {
	assert.True(t, IsPublicName("public/log.txt"))
	assert.False(t, IsPublicName("private/log.txt"))
	assert.False(t, IsPublicName("public"))
}

func TestArtifact_KeyAndIsPublic(t *testing.T) {
	a := &Artifact{TaskID: "T1", RunID: 2, Name: "public/log.txt"}
	assert.Equal(t, Key{TaskID: "T1", RunID: 2, Name: "public/log.txt"}, a.Key())
	assert.True(t, a.IsPublic())
}

func TestArtifact_ToJSON_IncludesURLOnlyForReference(t *testing.T) {
	expires := time.Now()

	ref := &Artifact{Name: "public/a", StorageType: Reference, Expires: expires, Details: ReferenceDetails{URL: "https://example.com/x"}}
	j := ref.ToJSON()
	assert.Equal(t, "https://example.com/x", j.URL)
	assert.Equal(t, Reference, j.StorageType)

	s3 := &Artifact{Name: "public/b", StorageType: S3, Expires: expires, Details: S3Details{Bucket: "b", Prefix: "p"}}
	assert.Empty(t, s3.ToJSON().URL)
}

func TestDetailsEqual(t *testing.T) {
	assert.True(t, DetailsEqual(S3Details{Bucket: "b", Prefix: "p"}, S3Details{Bucket: "b", Prefix: "p"}))
	assert.False(t, DetailsEqual(S3Details{Bucket: "b", Prefix: "p"}, S3Details{Bucket: "b", Prefix: "q"}))
	assert.False(t, DetailsEqual(S3Details{Bucket: "b"}, AzureDetails{Container: "b"}))
	assert.True(t, DetailsEqual(ReferenceDetails{URL: "a"}, ReferenceDetails{URL: "a"}))
	assert.False(t, DetailsEqual(ReferenceDetails{URL: "a"}, ReferenceDetails{URL: "b"}))
}
