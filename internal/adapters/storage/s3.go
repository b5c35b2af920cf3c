// internal/adapters/storage/s3.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/ammerola/storefront-ledger/internal/core/ports"
)

// uploadPartSize is the multipart chunk for large backup documents.
const uploadPartSize = 8 << 20

// S3API is the part of the S3 client the storage uses.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config describes the bucket and how to reach it.
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // MinIO or LocalStack
	UsePathStyle    bool
	// KeyPrefix is prepended to every key and stripped from listings.
	KeyPrefix string
	// Encryption is the server-side encryption requested on upload:
	// "", "AES256" or "aws:kms".
	Encryption string
}

// S3Storage keeps backup documents and uploaded import files in a bucket.
// Keys are normalised the same way LocalStorage does, so both backends
// accept and return identical keys.
type S3Storage struct {
	client     S3API
	uploader   *manager.Uploader
	bucket     string
	prefix     string
	encryption types.ServerSideEncryption
	logger     *slog.Logger
}

var _ ports.BlobStorage = (*S3Storage)(nil)

// NewS3Storage builds a client from cfg and makes sure the bucket exists.
func NewS3Storage(ctx context.Context, cfg *S3Config, logger *slog.Logger) (*S3Storage, error) {
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.EndpointResolver = s3.EndpointResolverFromURL(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if err := ensureBucket(ctx, client, cfg.Bucket, cfg.Region, logger); err != nil {
		return nil, err
	}

	s := NewS3StorageWithClient(client, cfg.Bucket, logger).WithKeyPrefix(cfg.KeyPrefix)
	s.encryption = types.ServerSideEncryption(cfg.Encryption)

	logger.Info("S3 storage initialized",
		slog.String("bucket", cfg.Bucket),
		slog.String("prefix", s.prefix),
		slog.String("region", cfg.Region))
	return s, nil
}

// NewS3StorageWithClient wraps an existing client with no key prefix.
func NewS3StorageWithClient(client S3API, bucket string, logger *slog.Logger) *S3Storage {
	return &S3Storage{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = uploadPartSize
			u.Concurrency = 2
		}),
		bucket: bucket,
		logger: logger.With(slog.String("storage", "s3"), slog.String("bucket", bucket)),
	}
}

// WithKeyPrefix returns a copy of s that keeps its objects under prefix.
func (s *S3Storage) WithKeyPrefix(prefix string) *S3Storage {
	c := *s
	c.prefix = normalisePrefix(prefix)
	return &c
}

func loadAWSConfig(ctx context.Context, cfg *S3Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	return config.LoadDefaultConfig(ctx, opts...)
}

// ensureBucket creates the bucket only when HEAD reports it missing.
func ensureBucket(ctx context.Context, client *s3.Client, bucket, region string, logger *slog.Logger) error {
	_, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("bucket %s is not reachable: %w", bucket, err)
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if region != "" && region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}
	_, err = client.CreateBucket(ctx, in)
	var owned *types.BucketAlreadyOwnedByYou
	switch {
	case err == nil:
		logger.Info("created S3 bucket", slog.String("bucket", bucket))
	case errors.As(err, &owned):
	default:
		return fmt.Errorf("bucket %s does not exist and could not be created: %w", bucket, err)
	}
	return nil
}

func normalisePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// objectKey maps a caller key to the bucket key.
func (s *S3Storage) objectKey(key string) (string, error) {
	p, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return s.prefix + strings.TrimPrefix(p, "/"), nil
}

// Upload stores body under key and returns its location. An empty
// contentType is guessed from the key's extension.
func (s *S3Storage) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		if contentType = mime.TypeByExtension(path.Ext(objKey)); contentType == "" {
			contentType = "application/octet-stream"
		}
	}

	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(objKey),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"ledger-stored-at": time.Now().UTC().Format(time.RFC3339),
			"ledger-upload-id": uuid.NewString(),
		},
	}
	if s.encryption != "" {
		in.ServerSideEncryption = s.encryption
	}

	result, err := s.uploader.Upload(ctx, in)
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "file stored",
		slog.String("key", objKey),
		slog.String("location", result.Location))
	return result.Location, nil
}

// Download streams an object. The caller closes the reader.
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	switch {
	case isNotFound(err):
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	case err != nil:
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return out.Body, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	objKey, err := s.objectKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "file deleted", slog.String("key", objKey))
	return nil
}

// List returns the sorted keys starting with prefix, without the
// storage's own key prefix.
func (s *S3Storage) List(ctx context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix + strings.TrimPrefix(prefix, "/")),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), s.prefix))
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	objKey, err := s.objectKey(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	switch {
	case err == nil:
		return true, nil
	case isNotFound(err):
		return false, nil
	default:
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
}

// isNotFound recognises the typed and the generic 404 shapes S3 and its
// look-alikes return.
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		noBucket *types.NoSuchBucket
	)
	if errors.As(err, &noKey) || errors.As(err, &notFound) || errors.As(err, &noBucket) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
