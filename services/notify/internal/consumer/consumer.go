package consumer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rework/video-access/pkg/events"
	"github.com/rework/video-access/pkg/logger"
)

// Consumer projects grant lifecycle events into owner notifications.
// The bus delivers at-least-once, so every handler dedups on
// (grant_id, ordinal) before acting.
type Consumer struct {
	bus events.Subscriber

	mu   sync.Mutex
	seen map[string]struct{}
}

func New(bus events.Subscriber) *Consumer {
	return &Consumer{
		bus:  bus,
		seen: make(map[string]struct{}),
	}
}

// Start subscribes to the grant lifecycle subjects. Subscriptions share a
// queue group so a scaled-out notify tier processes each event once.
func (c *Consumer) Start() error {
	if err := c.bus.QueueSubscribe(events.ViewConsumed, "notify", c.handleViewConsumed); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.ViewConsumed, err)
	}
	if err := c.bus.QueueSubscribe(events.GrantExhausted, "notify", c.handleGrantExhausted); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.GrantExhausted, err)
	}
	if err := c.bus.QueueSubscribe(events.GrantDeleted, "notify", c.handleGrantDeleted); err != nil {
		return fmt.Errorf("subscribe %s: %w", events.GrantDeleted, err)
	}
	return nil
}

// markSeen records the dedup key and reports whether it was already present.
func (c *Consumer) markSeen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return true
	}
	c.seen[key] = struct{}{}
	return false
}

func (c *Consumer) handleViewConsumed(msg *events.Message) {
	var ev events.ViewConsumedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("Failed to decode view.consumed event", "error", err)
		return
	}

	if c.markSeen(fmt.Sprintf("consumed:%s:%d", ev.GrantID, ev.ViewsConsumed)) {
		logger.Debug("Duplicate view.consumed event dropped", "grant_id", ev.GrantID, "ordinal", ev.ViewsConsumed)
		return
	}

	logger.Info("Video viewed",
		"grant_id", ev.GrantID,
		"video_id", ev.VideoID,
		"viewer_scope", ev.ViewerScope,
		"message", fmt.Sprintf("Your video was viewed. %d view(s) remaining.", ev.ViewsRemaining),
	)
}

func (c *Consumer) handleGrantExhausted(msg *events.Message) {
	var ev events.GrantExhaustedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("Failed to decode grant.exhausted event", "error", err)
		return
	}

	if c.markSeen("exhausted:" + ev.GrantID) {
		logger.Debug("Duplicate grant.exhausted event dropped", "grant_id", ev.GrantID)
		return
	}

	logger.Info("Video view limit reached",
		"grant_id", ev.GrantID,
		"video_id", ev.VideoID,
		"viewer_scope", ev.ViewerScope,
		"message", "Your video reached its view limit and is scheduled for deletion.",
	)
}

func (c *Consumer) handleGrantDeleted(msg *events.Message) {
	var ev events.GrantDeletedEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		logger.Error("Failed to decode grant.deleted event", "error", err)
		return
	}

	if c.markSeen("deleted:" + ev.GrantID) {
		logger.Debug("Duplicate grant.deleted event dropped", "grant_id", ev.GrantID)
		return
	}

	logger.Info("Video deleted",
		"grant_id", ev.GrantID,
		"video_id", ev.VideoID,
		"viewer_scope", ev.ViewerScope,
		"reason", ev.Reason,
		"message", "Your video is no longer available.",
	)
}
