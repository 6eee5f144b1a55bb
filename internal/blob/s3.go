// ABOUTME: S3 blob store storing one object per key in an S3-compatible bucket
// ABOUTME: Works with AWS and MinIO via an optional base endpoint and static credentials

package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configures an S3 backend.
type S3Options struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string // optional, e.g. a MinIO URL
	AccessKey string // optional; default credential chain when empty
	SecretKey string
}

// S3Store implements Store on an S3 bucket.
type S3Store struct {
	client S3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Store builds an S3 client from opts.
func NewS3Store(ctx context.Context, opts S3Options, logger *slog.Logger) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewS3StoreWithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With("component", "blob-s3", "bucket", bucket),
	}
}

// ObjectKey returns the object name used for key.
func (s *S3Store) ObjectKey(key string) string {
	return s.prefix + SafeName(key) + ".json"
}

// Get downloads the object for key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objectKey := s.ObjectKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting object %s: %w", objectKey, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading object %s: %w", objectKey, err)
	}
	s.logger.Debug("read object", "key", objectKey, "size", len(data))
	return data, nil
}

// Put uploads value as the object for key.
func (s *S3Store) Put(ctx context.Context, key string, value []byte) error {
	objectKey := s.ObjectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("putting object %s: %w", objectKey, err)
	}
	s.logger.Debug("wrote object", "key", objectKey, "size", len(value))
	return nil
}

// Close is a no-op; the S3 client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}
