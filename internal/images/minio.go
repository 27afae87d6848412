package images

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioObjectStore uploads generated images to an S3-compatible bucket.
type MinioObjectStore struct {
	client *minio.Client
	bucket string
}

func NewMinioObjectStore(endpoint, accessKey, secretKey, bucket string, useSSL bool) (*MinioObjectStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to object storage: %w", err)
	}
	return &MinioObjectStore{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (m *MinioObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

func (m *MinioObjectStore) PutImage(ctx context.Context, objectKey string, data []byte) error {
	_, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "image/png",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectKey, err)
	}
	return nil
}
