package supabase

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
)

// StorageClient copies finished reports into a Supabase Storage bucket.
type StorageClient struct {
	client *storage.Client
	bucket string
}

func NewStorageClient(supabaseURL, serviceKey, bucket string) *StorageClient {
	client := storage.NewClient(strings.TrimSuffix(supabaseURL, "/")+"/storage/v1", serviceKey, nil)

	return &StorageClient{
		client: client,
		bucket: bucket,
	}
}

// ArtifactPath is reports/{session_id}/{filename}.
func ArtifactPath(sessionID uuid.UUID, filename string) string {
	return fmt.Sprintf("reports/%s/%s", sessionID.String(), filename)
}

func (s *StorageClient) PublishArtifact(ctx context.Context, sessionID uuid.UUID, filename string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	contentType := "application/pdf"
	upsert := true
	_, err := s.client.UploadFile(s.bucket, ArtifactPath(sessionID, filename), bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("failed to upload report to supabase storage: %w", err)
	}
	return nil
}
