package s3

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds an s3.Client with static credentials and a fixed
// endpoint. Presigning is a pure local computation (no network round-trip),
// so this exercises the real SDK signer without contacting AWS.
func newTestClient(t *testing.T) *s3.Client {
	t.Helper()
	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKIATEST", "secret", ""),
	}
	endpoint := "https://s3.us-east-1.amazonaws.com"
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = &endpoint
		o.UsePathStyle = false
	})
}

func TestBucket_CreatePutUrl(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1")
	putURL, err := b.CreatePutUrl(context.Background(), "T1/0/public/log.txt", "text/plain", 30*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, putURL, "my-bucket")
	assert.Contains(t, putURL, "X-Amz-Signature")
}

func TestBucket_CreateSignedGetUrl(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1")
	getURL, err := b.CreateSignedGetUrl(context.Background(), "T1/0/public/log.txt", 30*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, getURL, "X-Amz-Signature")
}

func TestBucket_DirectURL_DefaultsToVirtualHostedForm(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-west-2")
	assert.Equal(t, "https://my-bucket.s3.us-west-2.amazonaws.com/T1/0/public/log.txt", b.DirectURL("T1/0/public/log.txt"))
}

func TestBucket_DirectURL_EscapesEachSegmentNotSlashes(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1")
	got := b.DirectURL("T1/0/public/a file with spaces.txt")
	assert.Equal(t, "https://my-bucket.s3.us-east-1.amazonaws.com/T1/0/public/a%20file%20with%20spaces.txt", got)

	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "/T1/0/public/a file with spaces.txt", u.Path)
}

func TestBucket_DirectURL_WithDirectHostOverride(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1", WithDirectHost("s3.internal.example.com"))
	assert.Equal(t, "https://s3.internal.example.com/T1/0/key", b.DirectURL("T1/0/key"))
}

func TestBucket_CloudFrontURL_FallsBackToDirectWhenUnset(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1")
	assert.Equal(t, b.DirectURL("key"), b.CloudFrontURL("key"))
}

func TestBucket_CloudFrontURL_UsesConfiguredHost(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "us-east-1", WithCloudFrontHost("cdn.example.com"))
	assert.Equal(t, "https://cdn.example.com/key", b.CloudFrontURL("key"))
}

func TestBucket_NameAndRegion(t *testing.T) {
	b := NewBucket(newTestClient(t), "my-bucket", "eu-central-1")
	assert.Equal(t, "my-bucket", b.Name())
	assert.Equal(t, "eu-central-1", b.Region())
}
