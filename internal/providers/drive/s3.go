// Package drive pushes finished artifacts to the user's cloud storage.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"fossapp/internal/generate"
)

// S3API is the subset of the S3 client the uploader needs; tests swap in a
// fake.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader implements generate.Uploader against a default bucket and
// generate.BucketStore for per-project buckets.
type S3Uploader struct {
	client S3API
	bucket string
	prefix string
	region string
}

// NewS3Uploader loads the default AWS config chain and targets the given
// bucket.
func NewS3Uploader(ctx context.Context, bucket, prefix, region string) (*S3Uploader, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("drive: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("drive: load aws config: %w", err)
	}
	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
	}, nil
}

// NewS3UploaderWithClient wires an explicit client; used by tests.
func NewS3UploaderWithClient(client S3API, bucket, prefix, region string) *S3Uploader {
	return &S3Uploader{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/"), region: region}
}

// Upload stores each file under the configured prefix. Per-file failures
// are collected rather than aborting the batch, so a partial upload still
// reports which links exist.
func (u *S3Uploader) Upload(ctx context.Context, files []generate.Asset) (*generate.UploadResult, error) {
	res := &generate.UploadResult{}
	for _, f := range files {
		key := f.Name
		if u.prefix != "" {
			key = path.Join(u.prefix, f.Name)
		}
		link, err := u.put(ctx, u.bucket, key, f.MIME, f.Data)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Name, err))
			continue
		}
		res.Links = append(res.Links, link)
	}
	return res, nil
}

// Put implements generate.BucketStore.
func (u *S3Uploader) Put(ctx context.Context, bucket, key string, data []byte) (string, error) {
	return u.put(ctx, bucket, key, "application/octet-stream", data)
}

func (u *S3Uploader) put(ctx context.Context, bucket, key, mime string, data []byte) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return u.objectURL(bucket, key), nil
}

func (u *S3Uploader) objectURL(bucket, key string) string {
	if u.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, u.region, key)
}
