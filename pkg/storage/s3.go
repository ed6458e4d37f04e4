// Copyright 2025 Justifai
//
// S3-compatible driver. Real AWS gets server-side encryption AES-256;
// a custom endpoint (MinIO, R2, etc.) disables it since those
// providers frequently reject the header.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/justifai/certify/pkg/errkind"
)

// S3Driver stores blobs in a single S3-compatible bucket.
type S3Driver struct {
	client         *s3.Client
	bucket         string
	baseURL        string
	customEndpoint bool
}

var _ Gateway = (*S3Driver)(nil)

// S3Config configures NewS3Driver. Endpoint is empty for real AWS, or
// a custom S3-compatible endpoint URL to enable path-style addressing.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	BaseURL  string
}

// NewS3Driver loads AWS credentials from the standard SDK chain
// (environment, shared config, instance role) and builds a client.
func NewS3Driver(ctx context.Context, cfg S3Config) (*S3Driver, error) {
	if cfg.Bucket == "" {
		return nil, errkind.New(errkind.Configuration, "S3_BUCKET_NAME is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Configuration, err, "load AWS config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Driver{
		client:         client,
		bucket:         cfg.Bucket,
		baseURL:        cfg.BaseURL,
		customEndpoint: cfg.Endpoint != "",
	}, nil
}

func (d *S3Driver) Name() string { return "s3" }

func (d *S3Driver) Store(ctx context.Context, data []byte, tenantID, batchID, objectID string, opts Options) (string, error) {
	rel := key(tenantID, batchID, objectID, opts)

	input := &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(rel),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(opts.contentType()),
	}
	if !d.customEndpoint {
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	}

	if _, err := d.client.PutObject(ctx, input); err != nil {
		return "", errkind.Wrap(errkind.Storage, err, "put object")
	}
	return rel, nil
}

func (d *S3Driver) Retrieve(ctx context.Context, relativePath string) ([]byte, error) {
	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(relativePath),
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "get object")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errkind.Wrap(errkind.Storage, err, "read object body")
	}
	return data, nil
}

func (d *S3Driver) PublicURL(relativePath string) string {
	if d.baseURL != "" {
		return d.baseURL + "/" + relativePath
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", d.bucket, relativePath)
}
