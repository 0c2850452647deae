package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// FileSink stores exported files in a directory.
type FileSink struct {
	Dir string
}

func (s FileSink) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// MinioSink stores exported files in an S3-compatible bucket.
type MinioSink struct {
	client *minio.Client
	bucket string
}

// NewMinioSink connects to endpoint and creates bucket if it is missing.
func NewMinioSink(endpoint, accessKey, secretKey string, useSSL bool, bucket string) (*MinioSink, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return &MinioSink{client: client, bucket: bucket}, nil
}

// Put uploads data under exports/<uuid>/<name> and returns the s3:// location.
func (s *MinioSink) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := fmt.Sprintf("exports/%s/%s", uuid.NewString(), filepath.Base(name))
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"filename": name},
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}
