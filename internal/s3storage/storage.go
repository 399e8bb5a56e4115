package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"reportr-backend/internal/config"
)

// Storage copies finished reports to a MinIO/S3 bucket.
type Storage struct {
	client *minio.Client
	bucket string
	region string
}

// New creates a MinIO client from the Config.
func New(cfg *config.Config) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{
		client: client,
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
	}, nil
}

// ObjectKey is reports/{session_id}/{filename}.
func ObjectKey(sessionID uuid.UUID, filename string) string {
	return fmt.Sprintf("reports/%s/%s", sessionID, filename)
}

// EnsureBucket makes sure the reports bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// PublishArtifact uploads the rendered PDF.
func (s *Storage) PublishArtifact(ctx context.Context, sessionID uuid.UUID, filename string, data []byte) error {
	opts := minio.PutObjectOptions{ContentType: "application/pdf"}
	_, err := s.client.PutObject(ctx, s.bucket, ObjectKey(sessionID, filename), bytes.NewReader(data), int64(len(data)), opts)
	if err != nil {
		return fmt.Errorf("upload report object: %w", err)
	}
	return nil
}

// DownloadArtifact fetches a published report back, for the operator CLI.
func (s *Storage) DownloadArtifact(ctx context.Context, sessionID uuid.UUID, filename string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, ObjectKey(sessionID, filename), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get report object: %w", err)
	}
	defer obj.Close()
	buf, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read report object: %w", err)
	}
	return buf, nil
}
