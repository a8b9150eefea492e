package dispatcher

import (
	"context"

	"github.com/samvad-hq/samvad-relay/pkg/publishers"
)

// EventPublisher publishes dispatch outcomes downstream and reports how many
// sinks accepted the event.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deduper remembers which call payloads were already delivered.
type Deduper interface {
	SeenDelivery(digest string) (bool, error)
	MarkDelivery(digest string) error
}
