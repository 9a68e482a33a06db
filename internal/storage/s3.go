package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

// S3Backend reads segments with ranged GetObject calls.
type S3Backend struct {
	client *s3.Client
	bucket string
	root   string
}

// NewS3Backend loads the default AWS configuration. Static credentials and a
// custom endpoint in cfg take precedence, for S3-compatible services.
func NewS3Backend(ctx context.Context, cfg config.PostingsConfig) (*S3Backend, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3BackendWithClient(client, cfg.Bucket, cfg.DataDir), nil
}

// NewS3BackendWithClient wraps an existing client. root is prepended to every
// segment name.
func NewS3BackendWithClient(client *s3.Client, bucket, root string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, root: root}
}

func (b *S3Backend) ReadAt(ctx context.Context, name string, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	key := path.Join(b.root, name)
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("get s3://%s/%s: %w", b.bucket, key, err)
	}
	defer resp.Body.Close()
	if n, err := io.ReadFull(resp.Body, p); err != nil {
		return fmt.Errorf("reading s3://%s/%s at %d: got %d of %d bytes: %w", b.bucket, key, off, n, len(p), err)
	}
	return nil
}
