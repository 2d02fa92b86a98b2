package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/erp/migrator/internal/domain/migration"
	"github.com/erp/migrator/internal/infrastructure/config"
)

// S3API is the subset of the S3 client the sink uses
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// S3ReportSink archives reports in an S3-compatible bucket (AWS S3, MinIO,
// RustFS) under {prefix}/{run_id}/.
type S3ReportSink struct {
	client S3API
	bucket string
	prefix string
	logger *zap.Logger
}

// S3ReportSinkOption is a functional option for configuring S3ReportSink
type S3ReportSinkOption func(*S3ReportSink)

// WithS3Logger sets a custom logger for S3ReportSink
func WithS3Logger(logger *zap.Logger) S3ReportSinkOption {
	return func(s *S3ReportSink) {
		s.logger = logger
	}
}

// NewS3ReportSink creates a sink from configuration. Static credentials are
// used when configured, otherwise the default AWS credential chain applies.
func NewS3ReportSink(ctx context.Context, cfg *config.StorageConfig, opts ...S3ReportSinkOption) (*S3ReportSink, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, errors.New("storage access key id and secret access key must be set together")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewS3ReportSinkWithClient(client, cfg.Bucket, cfg.Prefix, opts...), nil
}

// NewS3ReportSinkWithClient creates a sink around an existing client
func NewS3ReportSinkWithClient(client S3API, bucket, prefix string, opts ...S3ReportSinkOption) *S3ReportSink {
	s := &S3ReportSink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name identifies the sink in logs
func (s *S3ReportSink) Name() string {
	return "s3"
}

// Bucket returns the target bucket
func (s *S3ReportSink) Bucket() string {
	return s.bucket
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *S3ReportSink) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	s.logger.Info("Creating report bucket", zap.String("bucket", s.bucket))
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Publish uploads report.json and summary.txt for the report's run
func (s *S3ReportSink) Publish(ctx context.Context, report *migration.Report) error {
	objects, err := renderReport(report)
	if err != nil {
		return err
	}
	for _, obj := range objects {
		key := path.Join(s.prefix, runDirectory(report), obj.name)
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(obj.body),
			ContentType: aws.String(obj.contentType),
		})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		s.logger.Debug("Report object uploaded",
			zap.String("bucket", s.bucket),
			zap.String("key", key),
			zap.Int("size", len(obj.body)),
		)
	}
	return nil
}
