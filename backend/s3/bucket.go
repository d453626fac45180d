// Package s3 implements the s3-bucket storage backend adapter: put-URL /
// get-URL / signed-get-URL generation over an S3-compatible bucket, using
// the object-key escaping convention and the aws-sdk-go-v2 presign client.
package s3

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// escapeObjectKey percent-encodes each path segment of key while preserving
// the "/" separators, since url.PathEscape would otherwise encode them too.
func escapeObjectKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// Bucket adapts a single S3-compatible bucket. Two Buckets (public and
// private) are constructed per deployment.
type Bucket struct {
	client  *s3.Client
	presign *s3.PresignClient
	name    string
	region  string
	// directHost, when set, overrides the default {bucket}.s3.{region}.amazonaws.com
	// virtual-hosted form; used for S3-compatible endpoints in tests/dev.
	directHost string
	// cloudFrontHost is the CDN host fronting this bucket for anonymous public
	// reads. Only meaningful for the public bucket.
	cloudFrontHost string
}

// Option configures a Bucket.
type Option func(*Bucket)

// WithDirectHost overrides the virtual-hosted-style host used by DirectURL.
func WithDirectHost(host string) Option {
	return func(b *Bucket) { b.directHost = host }
}

// WithCloudFrontHost sets the CDN host used by CloudFrontURL.
func WithCloudFrontHost(host string) Option {
	return func(b *Bucket) { b.cloudFrontHost = host }
}

// NewBucket wraps an already-configured *s3.Client.
func NewBucket(client *s3.Client, name, region string, opts ...Option) *Bucket {
	b := &Bucket{
		client:  client,
		presign: s3.NewPresignClient(client),
		name:    name,
		region:  region,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the bucket identifier.
func (b *Bucket) Name() string { return b.name }

// Region returns the bucket's home region tag, compared against the region
// resolver's output when deciding how to redirect a get request.
func (b *Bucket) Region() string { return b.region }

// CreatePutUrl returns a presigned PUT URL bound to contentType, valid for
// ttl. Any clock-skew slack is the caller's responsibility to add to ttl.
func (b *Bucket) CreatePutUrl(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.name,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 bucket %q: presign put: %w", b.name, err)
	}
	return req.URL, nil
}

// CreateSignedGetUrl returns a presigned GET URL valid for ttl, used for
// artifacts in the private bucket. Public-bucket gets use the unsigned
// DirectURL and CloudFrontURL forms instead.
func (b *Bucket) CreateSignedGetUrl(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &b.name,
		Key:    &key,
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 bucket %q: presign get: %w", b.name, err)
	}
	return req.URL, nil
}

// DirectURL returns the unsigned, same-region, CDN-bypassing URL form used
// both as the direct redirect target and as the canonical artifact URL
// embedded in a cloud-mirror redirect.
func (b *Bucket) DirectURL(key string) string {
	host := b.directHost
	if host == "" {
		host = fmt.Sprintf("%s.s3.%s.amazonaws.com", b.name, b.region)
	}
	return fmt.Sprintf("https://%s/%s", host, escapeObjectKey(key))
}

// CloudFrontURL returns the CDN-fronted anonymous URL form used when the
// requester's region is unknown or caching was explicitly skipped.
func (b *Bucket) CloudFrontURL(key string) string {
	if b.cloudFrontHost == "" {
		return b.DirectURL(key)
	}
	return fmt.Sprintf("https://%s/%s", b.cloudFrontHost, escapeObjectKey(key))
}
