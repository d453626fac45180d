package azure

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestContainer signs SAS values locally with a static shared key; no
// network access is required, matching how this package computes URLs.
func newTestContainer(t *testing.T) *Container {
	t.Helper()
	cred, err := azblob.NewSharedKeyCredential("testaccount", "dGVzdGtleQ==")
	require.NoError(t, err)
	return NewContainer(nil, "artifacts", cred)
}

func TestContainer_GenerateWriteSAS(t *testing.T) {
	c := newTestContainer(t)
	url, err := c.GenerateWriteSAS(context.Background(), "T1/0/public/log.txt", 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "https://testaccount.blob.core.windows.net/artifacts/T1/0/public/log.txt?"))
	assert.Contains(t, url, "sig=")
}

func TestContainer_CreateSignedGetUrl(t *testing.T) {
	c := newTestContainer(t)
	url, err := c.CreateSignedGetUrl(context.Background(), "T1/0/public/log.txt", 30*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "sig=")
}

func TestContainer_Name(t *testing.T) {
	c := newTestContainer(t)
	assert.Equal(t, "artifacts", c.Name())
}
