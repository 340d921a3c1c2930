package alert

import (
	"github.com/rework/video-access/pkg/logger"
)

type DevAlerter struct{}

func NewDevAlerter() *DevAlerter {
	return &DevAlerter{}
}

func (d *DevAlerter) DeletionFailed(grantID, videoID string, attempts int, lastErr error) error {
	logger.Error("[DEV ALERT] asset purge failed",
		"grant_id", grantID,
		"video_id", videoID,
		"attempts", attempts,
		"last_error", lastErr,
	)
	return nil
}
