package blobclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/nsyte-dev/nsyte/pkg/api"
	"github.com/nsyte-dev/nsyte/pkg/hasher"
)

// S3Backend is an optional blob-server backend that stores blobs
// directly in an S3-compatible bucket, keyed by hex hash, instead of
// talking to an HTTP blob server ('s HEAD/GET/PUT/DELETE
// contract, reimplemented against object storage).
//
// Adapted from pkg/serve/registry/s3.S3BlobHandler: that type presigns
// GET redirects for a container registry frontend; this one performs
// the object operations directly, since a blob client has no HTTP
// frontend of its own to redirect through.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend constructs a backend against bucket, optionally under
// prefix (e.g. "blobs/"). optFns follow the standard aws-sdk-go-v2 config
// pattern for endpoint/region/profile overrides.
func NewS3Backend(ctx context.Context, bucket, prefix string, optFns ...func(*awsconfig.LoadOptions) error) (*S3Backend, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("blobclient: load aws config: %w", err)
	}
	return &S3Backend{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

func (b *S3Backend) key(hash string) string {
	return b.prefix + hash
}

func (b *S3Backend) Head(ctx context.Context, hash string) (bool, error) {
	key := b.key(hash)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &b.bucket, Key: &key})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, api.NewError(api.ErrKindTransient, "blobclient.S3Backend.Head", err)
}

func (b *S3Backend) Get(ctx context.Context, hash string) ([]byte, error) {
	key := b.key(hash)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, api.NewError(api.ErrKindNotFound, "blobclient.S3Backend.Get", err)
		}
		return nil, api.NewError(api.ErrKindTransient, "blobclient.S3Backend.Get", err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, api.NewError(api.ErrKindTransient, "blobclient.S3Backend.Get", err)
	}
	if got := hasher.Sum256Hex(body); got != hash {
		return nil, api.NewError(api.ErrKindMalformed, "blobclient.S3Backend.Get", fmt.Errorf("content hash %s does not match requested hash %s", got, hash))
	}
	return body, nil
}

// Put uploads directly by hash; authorisation for object storage is
// handled by the bucket's own IAM policy rather than a signed event, so
// auth is accepted for interface symmetry with Client.Put but unused.
func (b *S3Backend) Put(ctx context.Context, body []byte, _ api.Event) error {
	hash := hasher.Sum256Hex(body)
	key := b.key(hash)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &b.bucket,
		Key:    &key,
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return api.NewError(api.ErrKindTransient, "blobclient.S3Backend.Put", err)
	}
	return nil
}

func (b *S3Backend) Delete(ctx context.Context, hash string, _ api.Event) error {
	key := b.key(hash)
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil && !isNotFound(err) {
		return api.NewError(api.ErrKindTransient, "blobclient.S3Backend.Delete", err)
	}
	return nil
}

func isNotFound(err error) bool {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.ResponseError.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}
