package storage

import (
	"context"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

// Runs against a real bucket when TEST_S3_BUCKET is set. The object
// TEST_S3_KEY must hold at least 6 bytes.
func TestS3BackendIntegration(t *testing.T) {
	bucket := os.Getenv("TEST_S3_BUCKET")
	key := os.Getenv("TEST_S3_KEY")
	if bucket == "" || key == "" {
		t.Skip("TEST_S3_BUCKET/TEST_S3_KEY not set")
	}
	ctx := context.Background()
	b, err := NewS3Backend(ctx, config.PostingsConfig{
		Bucket:   bucket,
		Region:   os.Getenv("AWS_REGION"),
		Endpoint: os.Getenv("TEST_S3_ENDPOINT"),
	})
	require.NoError(t, err)

	p := make([]byte, 6)
	require.NoError(t, b.ReadAt(ctx, key, p, 0))

	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	require.NoError(t, err)
}

func TestMinIOBackendIntegration(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	key := os.Getenv("TEST_MINIO_KEY")
	if endpoint == "" || key == "" {
		t.Skip("TEST_MINIO_ENDPOINT/TEST_MINIO_KEY not set")
	}
	b, err := NewMinIOBackend(config.PostingsConfig{
		Endpoint:  endpoint,
		Bucket:    os.Getenv("TEST_MINIO_BUCKET"),
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
	})
	require.NoError(t, err)
	require.NoError(t, b.ReadAt(context.Background(), key, make([]byte, 6), 0))
}
