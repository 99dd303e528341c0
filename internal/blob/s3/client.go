// Package s3blob uploads end of session archives to S3-compatible object
// storage (AWS S3, MinIO, Cloudflare R2).
package s3blob

import (
	"context"
	"fmt"
	"net/url"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds connection parameters for an S3-compatible store.
type ClientConfig struct {
	Endpoint       string // empty for AWS S3
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool // required by most non-AWS providers
}

// Client wraps the AWS S3 SDK client with a fixed bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New builds a client for AWS S3 or a compatible provider.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint, err := normalizeEndpoint(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Health verifies the bucket is reachable with the configured credentials.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// normalizeEndpoint ensures the endpoint carries a scheme.
func normalizeEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("s3blob: invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme == "" {
		return "https://" + endpoint, nil
	}
	return endpoint, nil
}
