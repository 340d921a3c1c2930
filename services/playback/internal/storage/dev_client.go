package storage

import (
	"context"

	"github.com/rework/video-access/pkg/logger"
)

// DevClient logs deletions instead of calling a provider. Used in local
// development where no storage backend is running.
type DevClient struct{}

func NewDevClient() *DevClient {
	return &DevClient{}
}

func (d *DevClient) Delete(ctx context.Context, assetID string) error {
	logger.InfoContext(ctx, "[DEV STORAGE] delete asset", "asset_id", assetID)
	return nil
}
