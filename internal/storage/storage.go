// Package storage provides S3-compatible object storage for completion
// evidence photos. Uploads and downloads go through presigned URLs so image
// bytes never pass through the API.
package storage

import (
	"context"
	"time"
)

// PresignedURL contains the URL and metadata for a presigned operation.
type PresignedURL struct {
	URL       string    `json:"url"`
	FileKey   string    `json:"fileKey"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// EvidenceStorage defines the object storage operations the lifecycle needs.
type EvidenceStorage interface {
	// PresignUpload creates a presigned PUT URL for an evidence photo.
	// The folder is the request id, keeping evidence grouped per request.
	PresignUpload(ctx context.Context, folder, fileName, contentType string, sizeBytes int64) (*PresignedURL, error)

	// PresignDownload creates a presigned GET URL for a stored photo.
	PresignDownload(ctx context.Context, fileKey string) (*PresignedURL, error)

	// Delete removes a stored photo.
	Delete(ctx context.Context, fileKey string) error

	// EnsureBucket creates the evidence bucket if it does not exist.
	EnsureBucket(ctx context.Context) error
}
