// Package archive keeps reading exports in S3-compatible object storage (MinIO
// in development) and hands out presigned download links for them.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const region = "us-east-1"

// Config describes the bucket and the endpoints that reach it.
type Config struct {
	Endpoint       string
	PublicEndpoint string
	AccessKey      string
	SecretKey      string
	Bucket         string
	UseSSL         bool
}

// LoadConfig reads the S3_* variables. ok is false when S3_ENDPOINT is unset,
// meaning exports are disabled.
func LoadConfig() (cfg Config, ok bool, err error) {
	cfg = Config{
		Endpoint:       os.Getenv("S3_ENDPOINT"),
		PublicEndpoint: os.Getenv("S3_PUBLIC_ENDPOINT"),
		AccessKey:      os.Getenv("S3_ACCESS_KEY"),
		SecretKey:      os.Getenv("S3_SECRET_KEY"),
		Bucket:         os.Getenv("S3_BUCKET_NAME"),
		UseSSL:         os.Getenv("S3_USE_SSL") == "true",
	}
	if cfg.Endpoint == "" {
		return cfg, false, nil
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return cfg, false, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENDPOINT is set")
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "pathlet-exports"
	}
	if cfg.PublicEndpoint == "" {
		cfg.PublicEndpoint = cfg.Endpoint
	}
	return cfg, true, nil
}

// URL turns a host[:port] endpoint into a base URL.
func (c Config) URL(endpoint string) string {
	if c.UseSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// Archive is an object store for exports.
type Archive interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Health(ctx context.Context) error
}

type s3Archive struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	logger    *slog.Logger
}

// New connects to the bucket described by cfg, creating it when missing.
// Download links are signed for the public endpoint.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := newClient(awsCfg, cfg.URL(cfg.Endpoint))
	presignClient := client
	if cfg.PublicEndpoint != cfg.Endpoint {
		presignClient = newClient(awsCfg, cfg.URL(cfg.PublicEndpoint))
	}
	logger.Info("Object storage configured", "endpoint", cfg.Endpoint, "public_endpoint", cfg.PublicEndpoint, "bucket", cfg.Bucket)

	a := &s3Archive{
		client:    client,
		presigner: s3.NewPresignClient(presignClient),
		bucket:    cfg.Bucket,
		logger:    logger,
	}
	if err := a.ensureBucket(ctx); err != nil {
		logger.Warn("Failed to ensure bucket exists", "bucket", cfg.Bucket, "error", err)
	}
	return a, nil
}

// newClient uses path-style addressing, which MinIO requires.
func newClient(cfg aws.Config, endpoint string) *s3.Client {
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
}

func (a *s3Archive) ensureBucket(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err == nil {
		return nil
	}
	if _, err := a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	a.logger.Info("Created bucket", "bucket", a.bucket)
	return nil
}

func (a *s3Archive) Put(ctx context.Context, key, contentType string, body []byte) error {
	if key == "" {
		return errors.New("object key cannot be empty")
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		Body:          bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (a *s3Archive) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if key == "" {
		return "", errors.New("object key cannot be empty")
	}
	if ttl <= 0 {
		return "", errors.New("TTL must be positive")
	}
	req, err := a.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return req.URL, nil
}

func (a *s3Archive) Health(ctx context.Context) error {
	if _, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)}); err != nil {
		return fmt.Errorf("storage health check failed: %w", err)
	}
	return nil
}
