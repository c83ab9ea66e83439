// Package progress routes per-client progress events to a push channel,
// keyed by an opaque client id.
package progress

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ContentType identifies what stage an Event describes.
type ContentType string

const (
	ContentTranscode      ContentType = "transcode"
	ContentUpload         ContentType = "upload"
	ContentPoster         ContentType = "poster"
	ContentTrailer        ContentType = "trailer"
	ContentDashGeneration ContentType = "dash_generation"
)

// Content carries the event's stage and, for transcode events, which
// ladder rung it refers to.
type Content struct {
	Type       ContentType `json:"type"`
	Resolution string      `json:"resolution,omitempty"`
}

// Event is the schema delivered to subscribers.
type Event struct {
	ClientID string  `json:"clientId"`
	Progress int     `json:"progress"`
	Content  Content `json:"content"`
}

func channelName(clientID string) string {
	return "progress:" + clientID
}

// Bus is a single-threaded push channel keyed by clientId. Delivery is
// best-effort: events to a disconnected client are dropped. Safe for
// many concurrent emitters, following the same *redis.Client-wrapping
// style the infrastructure layer uses elsewhere.
type Bus struct {
	client *redis.Client
}

func NewBus(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Emit publishes an event on the client's channel. A publish with no
// subscribers is not an error -- that's the definition of best-effort.
func (b *Bus) Emit(ctx context.Context, clientID string, progressPct int, content Content) error {
	event := Event{ClientID: clientID, Progress: progressPct, Content: content}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channelName(clientID), payload).Err(); err != nil {
		return fmt.Errorf("progress: publish: %w", err)
	}
	return nil
}

// Subscription wraps a redis.PubSub scoped to one client's channel.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe opens a subscription for clientID. Callers must call Close
// when done receiving.
func (b *Bus) Subscribe(ctx context.Context, clientID string) *Subscription {
	return &Subscription{pubsub: b.client.Subscribe(ctx, channelName(clientID))}
}

// Events returns a channel of decoded events; malformed payloads are
// dropped rather than surfaced, since delivery is already best-effort.
func (s *Subscription) Events() <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for msg := range s.pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue
			}
			out <- event
		}
	}()
	return out
}

func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
