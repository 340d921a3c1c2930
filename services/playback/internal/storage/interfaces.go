package storage

import "context"

// Client is the transcoding/storage collaborator. The playback service only
// ever asks it to destroy an asset; uploads and transcoding happen elsewhere.
type Client interface {
	Delete(ctx context.Context, assetID string) error
}
