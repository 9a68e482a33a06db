package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Adithya-Monish-Kumar-K/dual-channel-search/pkg/config"
)

// MinIOBackend reads segments from MinIO or any S3-compatible store.
type MinIOBackend struct {
	client *minio.Client
	bucket string
	root   string
}

func NewMinIOBackend(cfg config.PostingsConfig) (*MinIOBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("creating minio client for %s: %w", cfg.Endpoint, err)
	}
	return NewMinIOBackendWithClient(client, cfg.Bucket, cfg.DataDir), nil
}

func NewMinIOBackendWithClient(client *minio.Client, bucket, root string) *MinIOBackend {
	return &MinIOBackend{client: client, bucket: bucket, root: root}
}

func (b *MinIOBackend) ReadAt(ctx context.Context, name string, p []byte, off int64) error {
	if len(p) == 0 {
		return nil
	}
	key := path.Join(b.root, name)
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, off+int64(len(p))-1); err != nil {
		return err
	}
	obj, err := b.client.GetObject(ctx, b.bucket, key, opts)
	if err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("get %s/%s: %w", b.bucket, key, err)
	}
	defer obj.Close()
	if n, err := io.ReadFull(obj, p); err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("reading %s/%s at %d: got %d of %d bytes: %w", b.bucket, key, off, n, len(p), err)
	}
	return nil
}
