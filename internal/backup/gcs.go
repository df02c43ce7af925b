package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
)

// Uploader archives imported spreadsheets so a failed import can be replayed.
type Uploader interface {
	Upload(ctx context.Context, year, filename string, data []byte) (string, error)
}

// GCSUploader writes backups to a Google Cloud Storage bucket. It assumes
// Application Default Credentials are configured.
type GCSUploader struct {
	bucket  string
	timeout time.Duration
}

func NewGCSUploader(bucket string) *GCSUploader {
	return &GCSUploader{bucket: bucket, timeout: 2 * time.Minute}
}

// Upload stores the file under uploads/{year}/{timestamp}_{filename} and
// returns the gs:// URI of the created object.
func (u *GCSUploader) Upload(ctx context.Context, year, filename string, data []byte) (string, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return "", fmt.Errorf("Upload: create storage client: %w", err)
	}
	defer client.Close()

	objectName := fmt.Sprintf("uploads/%s/%s_%s", year, time.Now().UTC().Format("20060102T150405"), filename)

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	w := client.Bucket(u.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("Upload: copy to GCS writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("Upload: close GCS writer: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", u.bucket, objectName), nil
}
