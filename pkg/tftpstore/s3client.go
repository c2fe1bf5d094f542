package tftpstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ClientConfig carries the parameters needed to build an S3 client for
// NewS3ClientFromConfig. StaticAccessKeyID/StaticSecretAccessKey are
// optional; when empty, the default AWS credential chain is used.
type S3ClientConfig struct {
	Region                string
	Endpoint              string
	ForcePathStyle        bool
	StaticAccessKeyID     string
	StaticSecretAccessKey string
}

// NewS3ClientFromConfig builds an *s3.Client from explicit parameters,
// for deployments against S3-compatible endpoints (MinIO, localstack)
// that aren't discoverable via the default AWS config chain.
func NewS3ClientFromConfig(ctx context.Context, cfg S3ClientConfig) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.StaticAccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StaticAccessKeyID, cfg.StaticSecretAccessKey, "",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tftpstore: loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}

		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}
