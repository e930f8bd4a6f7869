// Package s3 reads traces and models from S3 and uploads converted
// event logs. Objects are addressed as s3://bucket/key.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Scheme is the URL scheme handled by this package.
const Scheme = "s3://"

// Config holds S3 client configuration.
type Config struct {
	// Region is the AWS region (e.g., "us-east-1")
	Region string

	// Endpoint overrides the default S3 endpoint (for S3-compatible services)
	Endpoint string

	// UsePathStyle forces path-style addressing (for MinIO, LocalStack)
	UsePathStyle bool

	// Credentials (optional - uses default chain if not provided)
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	DownloadTimeout time.Duration
	UploadTimeout   time.Duration
}

// DefaultConfig returns sensible defaults for S3 configuration.
func DefaultConfig(region string) Config {
	return Config{
		Region:          region,
		DownloadTimeout: 5 * time.Minute,
		UploadTimeout:   5 * time.Minute,
	}
}

// IsURL reports whether path is an s3:// URL.
func IsURL(path string) bool {
	return strings.HasPrefix(path, Scheme)
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	if !IsURL(url) {
		return "", "", fmt.Errorf("not an s3 url: %q", url)
	}
	rest := strings.TrimPrefix(url, Scheme)
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url must name a bucket and a key: %q", url)
	}
	return bucket, key, nil
}

// Client provides S3 operations.
type Client struct {
	cfg    Config
	client *s3.Client
}

// NewClient creates a new S3 client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				cfg.SessionToken,
			),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = DefaultConfig("").DownloadTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = DefaultConfig("").UploadTimeout
	}
	return &Client{cfg: cfg, client: client}, nil
}

// Open returns the body of the object at url. Closing the reader releases
// the request.
func (c *Client) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DownloadTimeout)
	out, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	return &cancelOnCloseReader{ReadCloser: out.Body, cancel: cancel}, nil
}

type cancelOnCloseReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnCloseReader) Close() error {
	r.cancel()
	return r.ReadCloser.Close()
}

// Create returns a writer whose content is uploaded to url on Close.
// Converted event logs are small enough to be buffered in memory.
func (c *Client) Create(ctx context.Context, url, contentType string, metadata map[string]string) (io.WriteCloser, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &uploader{
		ctx:         ctx,
		c:           c,
		bucket:      bucket,
		key:         key,
		contentType: contentType,
		metadata:    metadata,
	}, nil
}

// uploader buffers writes and puts the object on Close.
type uploader struct {
	ctx         context.Context
	c           *Client
	bucket      string
	key         string
	contentType string
	metadata    map[string]string

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (u *uploader) Write(p []byte) (int, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return 0, fmt.Errorf("writer is closed")
	}
	return u.buf.Write(p)
}

func (u *uploader) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return nil
	}
	u.closed = true

	ctx, cancel := context.WithTimeout(u.ctx, u.c.cfg.UploadTimeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(u.key),
		Body:          bytes.NewReader(u.buf.Bytes()),
		ContentLength: aws.Int64(int64(u.buf.Len())),
	}
	if u.contentType != "" {
		input.ContentType = aws.String(u.contentType)
	}
	if len(u.metadata) > 0 {
		input.Metadata = u.metadata
	}

	if _, err := u.c.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s/%s: %w", u.bucket, u.key, err)
	}
	return nil
}
