package objectstore

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/phenobase/fieldstore/internal/errors"
)

// s3Store implements Store using an S3-compatible backend (AWS S3 or MinIO).
// Single bucket; keys map to object keys directly.
type s3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// S3Config holds explicit construction parameters for the S3 backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional; enables MinIO style deployments
	PathStyle       bool
	AccessKeyID     string // optional, falls back to the default credentials chain
	SecretAccessKey string
}

// NewS3 creates an S3-compatible object store.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.Newf("s3 bucket required").
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &s3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

func (s *s3Store) Provider() Provider { return ProviderS3 }

func (s *s3Store) Upload(ctx context.Context, key string, src Source, opts UploadOptions) (string, error) {
	reader, err := openSource(src)
	if err != nil {
		return "", err
	}
	defer func() { _ = reader.Close() }()

	contentType := opts.ContentType
	if contentType == "" {
		contentType = contentTypeFor(key)
	}

	input := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        reader,
		ContentType: &contentType,
	}
	if len(opts.Tags) > 0 {
		input.Metadata = cloneTags(opts.Tags)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", classifyS3Error(err, key, errors.CategoryStorageUpload)
	}

	// Durable object URL without expiry semantics; presigning is a separate,
	// explicit operation.
	url, err := s.PresignedURL(ctx, key, 15*time.Minute)
	if err != nil {
		return "", err
	}
	return url, nil
}

func (s *s3Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return nil, classifyS3Error(err, key, errors.CategoryStorageDownload)
	}
	return out.Body, nil
}

func (s *s3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		classified := classifyS3Error(err, key, errors.CategoryStorageConnection)
		if errors.IsNotFound(classified) {
			return false, nil
		}
		return false, classified
	}
	return true, nil
}

func (s *s3Store) PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	out, err := s.presign.PresignGetObject(ctx,
		&s3.GetObjectInput{Bucket: &s.bucket, Key: &key},
		func(po *s3.PresignOptions) { po.Expires = ttl })
	if err != nil {
		return "", classifyS3Error(err, key, errors.CategoryStorageDownload)
	}
	return out.URL, nil
}

func (s *s3Store) Metadata(ctx context.Context, key string) (Info, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		return Info{}, classifyS3Error(err, key, errors.CategoryStorageConnection)
	}

	info := Info{Key: key, Tags: out.Metadata}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.Modified = out.LastModified.UTC()
	}
	return info, nil
}

// classifyS3Error maps AWS SDK failures onto the error taxonomy so the retry
// layer and the pipeline can branch on failure kind.
func classifyS3Error(err error, key string, fallback errors.ErrorCategory) error {
	category := fallback

	var netErr net.Error
	if errors.As(err, &netErr) {
		category = errors.CategoryStorageConnection
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			category = errors.CategoryNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			category = errors.CategoryStorageAuth
		case "InternalError", "ServiceUnavailable", "SlowDown", "RequestTimeout":
			category = errors.CategoryStorageConnection
		}
	} else if strings.Contains(strings.ToLower(err.Error()), "connection") {
		category = errors.CategoryStorageConnection
	}

	if category == errors.CategoryNotFound {
		return errors.New(err).
			Component("objectstore").
			Category(category).
			Context("resource", "object").
			Context("identifier", key).
			Build()
	}
	return errors.New(err).
		Component("objectstore").
		Category(category).
		Context("key", key).
		Build()
}
