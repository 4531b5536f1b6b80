// Package testutil hosts test doubles for the storage backends.
package testutil

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
)

// DefaultBucket is the bucket name used when a test does not care.
const DefaultBucket = "mintline-assets"

// Bucket is an in-memory S3 endpoint with a single bucket provisioned,
// torn down with the test that created it.
type Bucket struct {
	Client *s3.Client
	Name   string

	server *httptest.Server
}

// NewBucket starts an in-memory S3 backend, creates the named bucket
// (DefaultBucket when name is empty) and registers teardown on t.
func NewBucket(t *testing.T, name string) *Bucket {
	t.Helper()
	if name == "" {
		name = DefaultBucket
	}

	server := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(server.Close)

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "")),
	)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String(server.URL)
	})

	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)}); err != nil {
		t.Fatalf("create bucket %q: %v", name, err)
	}

	return &Bucket{Client: client, Name: name, server: server}
}

// Object fetches key from the bucket and returns its body and content type.
func (b *Bucket) Object(t *testing.T, key string) ([]byte, string) {
	t.Helper()

	out, err := b.Client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.Name),
		Key:    aws.String(key),
	})
	if err != nil {
		t.Fatalf("get object %s: %v", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		t.Fatalf("read object %s: %v", key, err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return data, contentType
}
