package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

const coverCacheControl = "public, max-age=86400"

type S3Options struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// S3Covers keeps uploaded cover images in one bucket.
type S3Covers struct {
	client *s3.Client
	bucket string
}

// NewS3Covers uses the static key pair when both halves are set and the default
// AWS credential chain otherwise.
func NewS3Covers(ctx context.Context, o S3Options) (*S3Covers, error) {
	if o.Bucket == "" {
		return nil, errors.New("AWS_S3_BUCKET is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKeyID != "" && o.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKeyID, o.SecretAccessKey, ""),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &S3Covers{client: s3.NewFromConfig(cfg), bucket: o.Bucket}, nil
}

func coverKey(prefix, filename string) string {
	return prefix + uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

func (c *S3Covers) Upload(ctx context.Context, prefix, originalFilename string, body io.Reader, contentType string) (string, error) {
	key := coverKey(prefix, originalFilename)
	// Payload signing needs a seekable body; covers are small enough to buffer.
	if _, ok := body.(io.ReadSeeker); !ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return "", fmt.Errorf("read cover: %w", err)
		}
		body = bytes.NewReader(data)
	}
	_, err := c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(c.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String(coverCacheControl),
		Metadata:     map[string]string{"original-filename": filepath.Base(originalFilename)},
	})
	if err != nil {
		return "", fmt.Errorf("put cover %s: %w", key, err)
	}
	return key, nil
}

// GetObject opens a cover. A key missing from the bucket is reported as a
// missing cover.
func (c *S3Covers) GetObject(ctx context.Context, key string) (io.ReadCloser, string, error) {
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		return nil, "", notFound("cover")
	}
	if err != nil {
		return nil, "", fmt.Errorf("get cover %s: %w", key, err)
	}
	return out.Body, aws.ToString(out.ContentType), nil
}

func (c *S3Covers) Delete(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete cover %s: %w", key, err)
	}
	return nil
}
