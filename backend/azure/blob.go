// Package azure implements the blob-container storage backend adapter:
// write-SAS and read-SAS generation over an Azure Blob container.
package azure

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// Container adapts a single blob container.
type Container struct {
	client     *azblob.Client
	container  string
	credential *azblob.SharedKeyCredential
}

// NewContainer wraps an already-configured *azblob.Client. cred is used to
// sign SAS query parameters locally (no network round-trip per signature).
func NewContainer(client *azblob.Client, container string, cred *azblob.SharedKeyCredential) *Container {
	return &Container{client: client, container: container, credential: cred}
}

// Name returns the container identifier.
func (c *Container) Name() string { return c.container }

// GenerateWriteSAS returns a write-only SAS URL for path, valid for ttl.
func (c *Container) GenerateWriteSAS(_ context.Context, path string, ttl time.Duration) (string, error) {
	return c.sign(path, sas.BlobPermissions{Write: true, Create: true}, ttl)
}

// CreateSignedGetUrl returns a read-only SAS URL for path, valid for ttl.
func (c *Container) CreateSignedGetUrl(_ context.Context, path string, ttl time.Duration) (string, error) {
	return c.sign(path, sas.BlobPermissions{Read: true}, ttl)
}

func (c *Container) sign(path string, perms sas.BlobPermissions, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		StartTime:     now.Add(-5 * time.Minute),
		ExpiryTime:    now.Add(ttl),
		Permissions:   perms.String(),
		ContainerName: c.container,
		BlobName:      path,
	}
	signed, err := values.SignWithSharedKey(c.credential)
	if err != nil {
		return "", fmt.Errorf("azure container %q: sign sas: %w", c.container, err)
	}
	blobURL := fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", c.credential.AccountName(), c.container, path)
	return blobURL + "?" + signed.Encode(), nil
}
