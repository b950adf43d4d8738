// Package archive stores verified webhook payloads in S3 compatible object storage.
//
// Objects are keyed by provider, receive date and event ID:
//
//	<prefix><provider>/2025/03/01/<event id>.json
//
// Redelivered events overwrite their own object.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/subsync/pkg/billing"
)

var (
	ErrInvalidConfig      = errors.New("invalid archive configuration")
	ErrFailedToLoadConfig = errors.New("failed to load AWS configuration")
	ErrBucketNotFound     = errors.New("archive bucket not found")
	ErrAccessDenied       = errors.New("archive access denied")
	ErrUploadFailed       = errors.New("archive upload failed")
)

// Config enables archiving when Bucket is set.
type Config struct {
	Bucket         string        `env:"ARCHIVE_S3_BUCKET"`
	Region         string        `env:"ARCHIVE_S3_REGION" envDefault:"us-east-1"`
	Endpoint       string        `env:"ARCHIVE_S3_ENDPOINT"` // MinIO, R2, DigitalOcean Spaces
	AccessKeyID    string        `env:"ARCHIVE_S3_ACCESS_KEY_ID"`
	SecretKey      string        `env:"ARCHIVE_S3_SECRET_KEY"`
	ForcePathStyle bool          `env:"ARCHIVE_S3_FORCE_PATH_STYLE" envDefault:"false"`
	Prefix         string        `env:"ARCHIVE_S3_PREFIX" envDefault:"webhooks/"`
	UploadTimeout  time.Duration `env:"ARCHIVE_S3_UPLOAD_TIMEOUT" envDefault:"5s"`
}

func (c Config) Enabled() bool { return c.Bucket != "" }

// S3Client is the part of *s3.Client the archive uses.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive implements billing.Archiver.
type S3Archive struct {
	client        S3Client
	bucket        string
	prefix        string
	uploadTimeout time.Duration
}

var _ billing.Archiver = (*S3Archive)(nil)

type Option func(*options)

type options struct {
	client        S3Client
	configOptions []func(*config.LoadOptions) error
}

// WithClient uses a preconfigured client instead of loading the AWS config.
func WithClient(c S3Client) Option {
	return func(o *options) { o.client = c }
}

// WithConfigOption adds an AWS config load option, e.g. config.WithHTTPClient.
func WithConfigOption(opt func(*config.LoadOptions) error) Option {
	return func(o *options) { o.configOptions = append(o.configOptions, opt) }
}

func NewS3(ctx context.Context, cfg Config, opts ...Option) (*S3Archive, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, fmt.Errorf("%w: bucket and region are required", ErrInvalidConfig)
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			loadOpts = append(loadOpts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		loadOpts = append(loadOpts, o.configOptions...)

		awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
		if err != nil {
			return nil, errors.Join(ErrFailedToLoadConfig, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Archive{
		client:        client,
		bucket:        cfg.Bucket,
		prefix:        cfg.Prefix,
		uploadTimeout: cfg.UploadTimeout,
	}, nil
}

// Key returns the object key for an event.
func (a *S3Archive) Key(e billing.RawEvent) string {
	return a.prefix + keySegment(e.Provider) + "/" + e.ReceivedAt.UTC().Format("2006/01/02") + "/" + keySegment(e.ID) + ".json"
}

func (a *S3Archive) Archive(ctx context.Context, e billing.RawEvent) error {
	if a.uploadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.uploadTimeout)
		defer cancel()
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(e)),
		Body:        bytes.NewReader(e.Payload),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"provider":    e.Provider,
			"event-type":  e.Type,
			"received-at": e.ReceivedAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return classifyError(err)
	}
	return nil
}

// keySegment escapes provider-controlled values so they cannot add key segments.
func keySegment(s string) string {
	if s == "" {
		return "unknown"
	}
	return url.PathEscape(strings.ReplaceAll(s, "..", "_"))
}

func classifyError(err error) error {
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return errors.Join(ErrBucketNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return errors.Join(ErrBucketNotFound, err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return errors.Join(ErrAccessDenied, err)
		}
	}
	return errors.Join(ErrUploadFailed, err)
}
