package port

import "context"

// ArtifactStorage mirrors a finished job artifact and returns the URL it can be fetched from.
type ArtifactStorage interface {
	UploadArtifact(ctx context.Context, objectKey string, filePath string, contentType string) (string, error)
}
