package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskcluster/artifactcore/artifact"
)

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "T1#3", partitionKey("T1", 3))
}

func TestToItemFromItem_RoundTripsEachVariant(t *testing.T) {
	expires := time.UnixMilli(1_700_000_000_123).UTC()

	cases := []struct {
		name string
		a    *artifact.Artifact
	}{
		{"s3", &artifact.Artifact{TaskID: "T1", RunID: 0, Name: "public/a", StorageType: artifact.S3, ContentType: "text/plain", Expires: expires, Details: artifact.S3Details{Bucket: "b", Prefix: "T1/0/public/a"}}},
		{"azure", &artifact.Artifact{TaskID: "T1", RunID: 0, Name: "public/b", StorageType: artifact.Azure, Expires: expires, Details: artifact.AzureDetails{Container: "c", Path: "T1/0/public/b"}}},
		{"reference", &artifact.Artifact{TaskID: "T1", RunID: 0, Name: "public/c", StorageType: artifact.Reference, Expires: expires, Details: artifact.ReferenceDetails{URL: "https://example.com"}}},
		{"error", &artifact.Artifact{TaskID: "T1", RunID: 0, Name: "public/d", StorageType: artifact.Error, Expires: expires, Details: artifact.ErrorDetails{Message: "m", Reason: "r"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it, err := toItem(tc.a)
			require.NoError(t, err)
			assert.Equal(t, "T1#0", it.PK)

			back, err := fromItem(it)
			require.NoError(t, err)
			assert.Equal(t, tc.a.TaskID, back.TaskID)
			assert.Equal(t, tc.a.Name, back.Name)
			assert.Equal(t, tc.a.StorageType, back.StorageType)
			assert.Equal(t, tc.a.Details, back.Details)
			assert.True(t, tc.a.Expires.Equal(back.Expires))
		})
	}
}

func TestToItem_UnknownDetailsType(t *testing.T) {
	_, err := toItem(&artifact.Artifact{StorageType: "bogus", Details: nil})
	assert.Error(t, err)
}

func TestFromItem_UnknownStorageType(t *testing.T) {
	_, err := fromItem(&item{StorageType: "bogus"})
	assert.Error(t, err)
}

func TestDynamoCursor_RoundTrip(t *testing.T) {
	encoded := encodeDynamoCursor(cursor{Name: "public/z"})
	decoded, err := decodeDynamoCursor(encoded)
	require.NoError(t, err)
	assert.Equal(t, "public/z", decoded.Name)
}

func TestDecodeDynamoCursor_InvalidToken(t *testing.T) {
	_, err := decodeDynamoCursor([]byte("not valid base64!!"))
	assert.Error(t, err)
}
