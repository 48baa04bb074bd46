package s3

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultRegion = "us-east-1"

	defaultDialTimeout           = 10 * time.Second
	defaultResponseHeaderTimeout = 30 * time.Second
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
)

// Client wraps the S3 client used to publish reports
type Client struct {
	s3Client *s3.Client
}

// Config holds S3 client configuration
type Config struct {
	// Endpoint of an S3-compatible service; empty means AWS
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// MaxRetryAttempts and MaxBackoffDelay tune the SDK retryer when non-zero
	MaxRetryAttempts int
	MaxBackoffDelay  time.Duration
}

// NewClient creates a new S3 client with static credentials
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("access key ID and secret access key are required")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: defaultDialTimeout,
			}).DialContext,
			ResponseHeaderTimeout: defaultResponseHeaderTimeout,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		},
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithHTTPClient(httpClient),
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	}

	if cfg.MaxRetryAttempts > 0 || cfg.MaxBackoffDelay > 0 {
		optFns = append(optFns, config.WithRetryer(func() aws.Retryer {
			var retryer aws.Retryer = retry.NewStandard()
			if cfg.MaxRetryAttempts > 0 {
				retryer = retry.AddWithMaxAttempts(retryer, cfg.MaxRetryAttempts)
			}
			if cfg.MaxBackoffDelay > 0 {
				retryer = retry.AddWithMaxBackoffDelay(retryer, cfg.MaxBackoffDelay)
			}
			return retryer
		}))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible services rarely support virtual-hosted buckets
			o.UsePathStyle = true
		})
	}

	return &Client{s3Client: s3.NewFromConfig(awsCfg, clientOpts...)}, nil
}
