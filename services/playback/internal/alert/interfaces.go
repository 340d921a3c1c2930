package alert

// Service delivers operator-facing alerts. Playback denial never depends on
// an alert being delivered; these exist so a human notices a stuck purge.
type Service interface {
	DeletionFailed(grantID, videoID string, attempts int, lastErr error) error
}
