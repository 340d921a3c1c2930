package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rework/video-access/pkg/logger"
)

type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
	Close() error
}

type Subscriber interface {
	Subscribe(subject string, handler func(msg *Message)) error
	QueueSubscribe(subject, queue string, handler func(msg *Message)) error
	Close() error
}

type EventBus interface {
	Publisher
	Subscriber
}

type Message struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
}

type NATSEventBus struct {
	conn *nats.Conn
}

func NewNATSEventBus(url string) (*NATSEventBus, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSEventBus{conn: conn}, nil
}

func (n *NATSEventBus) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	logger.DebugContext(ctx, "Publishing event", "subject", subject, "data", string(payload))

	return n.conn.Publish(subject, payload)
}

func (n *NATSEventBus) Subscribe(subject string, handler func(msg *Message)) error {
	_, err := n.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) QueueSubscribe(subject, queue string, handler func(msg *Message)) error {
	_, err := n.conn.QueueSubscribe(subject, queue, func(msg *nats.Msg) {
		handler(&Message{
			Subject:   msg.Subject,
			Data:      msg.Data,
			Timestamp: time.Now(),
		})
	})
	return err
}

func (n *NATSEventBus) Close() error {
	n.conn.Close()
	return nil
}

// Subjects. Delivery is at-least-once; consumers dedup on
// (grant_id, views_consumed) since redelivery is expected.
const (
	ViewConsumed   = "video.view.consumed"
	GrantExhausted = "video.grant.exhausted"
	GrantDeleted   = "video.grant.deleted"
)

type ViewConsumedEvent struct {
	GrantID        string    `json:"grant_id"`
	VideoID        string    `json:"video_id"`
	ViewerScope    string    `json:"viewer_scope"`
	ViewsConsumed  int       `json:"views_consumed"`
	ViewsRemaining int       `json:"views_remaining"`
	ConsumedAt     time.Time `json:"consumed_at"`
}

type GrantExhaustedEvent struct {
	GrantID       string    `json:"grant_id"`
	VideoID       string    `json:"video_id"`
	ViewerScope   string    `json:"viewer_scope"`
	ViewsConsumed int       `json:"views_consumed"`
	ExhaustedAt   time.Time `json:"exhausted_at"`
}

type GrantDeletedEvent struct {
	GrantID       string    `json:"grant_id"`
	VideoID       string    `json:"video_id"`
	ViewerScope   string    `json:"viewer_scope"`
	ViewsConsumed int       `json:"views_consumed"`
	Reason        string    `json:"reason"`
	DeletedAt     time.Time `json:"deleted_at"`
}
