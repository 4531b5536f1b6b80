package drop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Storage implements StorageClient over an S3 bucket. Objects are keyed
// <prefix><index><ext> for media and <prefix><index>.json for manifests, and
// the returned URIs resolve against the bucket's public base URL.
type S3Storage struct {
	Client *s3.Client
	Bucket string
	Prefix string
	// BaseURL overrides the public URL root. Defaults to the virtual-hosted
	// s3 URL for the bucket.
	BaseURL string
}

// NewS3Storage creates an S3-backed storage client.
func NewS3Storage(client *s3.Client, bucket, prefix string) *S3Storage {
	return &S3Storage{Client: client, Bucket: bucket, Prefix: prefix}
}

func (s *S3Storage) key(name string) string {
	return s.Prefix + name
}

func (s *S3Storage) uri(key string) string {
	base := s.BaseURL
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.amazonaws.com", s.Bucket)
	}
	return strings.TrimRight(base, "/") + "/" + key
}

func (s *S3Storage) put(ctx context.Context, key string, body *bytes.Reader, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.Client.PutObject(ctx, input); err != nil {
		var responseErr *smithyhttp.ResponseError
		if errors.As(err, &responseErr) {
			return "", fmt.Errorf("put object %s: http %d: %w", key, responseErr.HTTPStatusCode(), err)
		}
		return "", fmt.Errorf("put object %s: %w", key, err)
	}
	return s.uri(key), nil
}

func (s *S3Storage) UploadMedia(ctx context.Context, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read media %s: %w", path, err)
	}

	return s.put(ctx, s.key(filepath.Base(path)), bytes.NewReader(data), contentType)
}

func (s *S3Storage) UploadManifest(ctx context.Context, index string, payload []byte) (string, error) {
	return s.put(ctx, s.key(index+".json"), bytes.NewReader(payload), "application/json")
}
